package shopify

import (
	"context"
	"errors"
	"time"

	"github.com/fatflowers/pcbuilder/pkg/apperr"
)

// ShopInfo is the subset of the shop object used at registration.
type ShopInfo struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	MyshopifyDomain string    `json:"myshopifyDomain"`
	CurrencyCode    string    `json:"currencyCode"`
	CreatedAt       time.Time `json:"createdAt"`
}

const shopQuery = `
query ShopInfo {
  shop { id name email myshopifyDomain currencyCode createdAt }
}`

func (c *Client) ShopInfo(ctx context.Context, shop Shop) (*ShopInfo, error) {
	data, err := PostGraphQL[struct {
		Shop *ShopInfo `json:"shop"`
	}](ctx, c, shop, "shop", shopQuery, nil)
	if err != nil {
		return nil, err
	}
	if data.Shop == nil || data.Shop.ID == "" {
		return nil, apperr.Wrap(apperr.CodeGatewayUnavailable, errors.New("empty shop payload"), "shopify shop query failed")
	}
	return data.Shop, nil
}

// FileInput is one fileCreate entry pointing at an externally hosted file.
type FileInput struct {
	Alt            string `json:"alt"`
	ContentType    string `json:"contentType"`
	OriginalSource string `json:"originalSource"`
	Filename       string `json:"filename"`
}

const fileCreateMutation = `
mutation fileCreate($files: [FileCreateInput!]!) {
  fileCreate(files: $files) {
    files { id fileStatus }
    userErrors { field message }
  }
}`

// CreateFiles registers files with Shopify and returns their GIDs in input order.
func (c *Client) CreateFiles(ctx context.Context, shop Shop, files []FileInput) ([]string, error) {
	data, err := PostGraphQL[struct {
		FileCreate *struct {
			Files []struct {
				ID         string `json:"id"`
				FileStatus string `json:"fileStatus"`
			} `json:"files"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"fileCreate"`
	}](ctx, c, shop, "fileCreate", fileCreateMutation, map[string]any{"files": files})
	if err != nil {
		return nil, err
	}
	if data.FileCreate == nil {
		return nil, apperr.Wrap(apperr.CodeGatewayUnavailable, errors.New("empty fileCreate payload"), "shopify fileCreate failed")
	}
	if len(data.FileCreate.UserErrors) > 0 {
		return nil, apperr.Rejected("shopify rejected the files", toFieldErrors(data.FileCreate.UserErrors))
	}
	ids := make([]string, 0, len(data.FileCreate.Files))
	for _, f := range data.FileCreate.Files {
		ids = append(ids, f.ID)
	}
	if len(ids) != len(files) {
		return nil, apperr.Wrap(apperr.CodeGatewayUnavailable, errors.New("fileCreate returned fewer files than sent"), "shopify fileCreate failed")
	}
	return ids, nil
}

const mediaNodesQuery = `
query GetMediaByGids($ids: [ID!]!) {
  nodes(ids: $ids) {
    ... on Media {
      id
      preview { image { url } }
    }
  }
}`

// MediaPreviewURLs returns preview URLs keyed by GID for the media whose
// processing has finished. Pending media are absent from the map.
func (c *Client) MediaPreviewURLs(ctx context.Context, shop Shop, ids []string) (map[string]string, error) {
	data, err := PostGraphQL[struct {
		Nodes []*struct {
			ID      string `json:"id"`
			Preview *struct {
				Image *struct {
					URL string `json:"url"`
				} `json:"image"`
			} `json:"preview"`
		} `json:"nodes"`
	}](ctx, c, shop, "nodes", mediaNodesQuery, map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(ids))
	for _, n := range data.Nodes {
		if n == nil || n.Preview == nil || n.Preview.Image == nil || n.Preview.Image.URL == "" {
			continue
		}
		out[n.ID] = n.Preview.Image.URL
	}
	return out, nil
}
