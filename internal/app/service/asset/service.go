package asset

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/internal/app/service/merchant"
	"github.com/fatflowers/pcbuilder/internal/platform/objectstore"
	"github.com/fatflowers/pcbuilder/internal/platform/shopify"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/config"
	"github.com/fatflowers/pcbuilder/pkg/logctx"
	"github.com/fatflowers/pcbuilder/pkg/tool"
	"github.com/fatflowers/pcbuilder/pkg/validate"
)

var Module = fx.Options(
	fx.Provide(
		New,
		func(s *objectstore.Store) Bucket { return s },
		func(c *shopify.Client) Files { return c },
		func(m *merchant.Service) Shops { return m },
	),
)

// Bucket stages uploads where Shopify can fetch them.
type Bucket interface {
	Enabled() bool
	Put(ctx context.Context, prefix, name, contentType string, data []byte) (string, error)
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

type Files interface {
	CreateFiles(ctx context.Context, shop shopify.Shop, files []shopify.FileInput) ([]string, error)
	MediaPreviewURLs(ctx context.Context, shop shopify.Shop, ids []string) (map[string]string, error)
}

type Shops interface {
	ShopCredentials(ctx context.Context, domain string) (shopify.Shop, error)
}

type Service struct {
	bucket   Bucket
	files    Files
	shops    Shops
	policy   pollPolicy
	maxBytes int64
	log      *zap.SugaredLogger
	clock    backoff.Clock
	// newTimer returns nil for the library's real timer.
	newTimer func() backoff.Timer
}

func New(cfg *config.Config, bucket Bucket, files Files, shops Shops, log *zap.SugaredLogger) *Service {
	maxBytes := cfg.Upload.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Service{
		bucket:   bucket,
		files:    files,
		shops:    shops,
		policy:   newPollPolicy(cfg.Upload.PollInitial, cfg.Upload.PollMaxDelay, cfg.Upload.PollTimeout),
		maxBytes: maxBytes,
		log:      log,
		clock:    backoff.SystemClock,
		newTimer: func() backoff.Timer { return nil },
	}
}

type File struct {
	Name string `json:"name" validate:"required,max=255"`
	// Base64 is a data URL ("data:image/png;base64,...") or bare base64.
	Base64 string `json:"base64" validate:"required"`
}

type UploadRequest struct {
	Files []File `json:"files" validate:"max=10,dive"`
	// Delete clears every staged upload of the shop instead of uploading.
	Delete bool `json:"delete"`
}

type UploadResult struct {
	ImageURLs     []string `json:"image_urls"`
	FilesUploaded int      `json:"files_uploaded"`
	Deleted       int      `json:"deleted,omitempty"`
}

type decodedFile struct {
	name        string
	contentType string
	data        []byte
}

// Upload stages the files, registers them with Shopify and waits until every
// preview URL is available or the poll timeout passes.
func (s *Service) Upload(ctx context.Context, shopDomain string, req UploadRequest) (*UploadResult, error) {
	log := logctx.FromCtx(ctx, s.log)
	if !s.bucket.Enabled() {
		return nil, apperr.New(apperr.CodeInternal, "asset storage is not configured")
	}
	prefix := objectstore.ShopPrefix(shopDomain)

	if req.Delete {
		n, err := s.bucket.DeletePrefix(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to delete staged uploads: %w", err)
		}
		log.Infow("staged uploads deleted", "shop", shopDomain, "count", n)
		return &UploadResult{ImageURLs: []string{}, Deleted: n}, nil
	}

	if len(req.Files) == 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "no files uploaded")
	}
	if err := validate.Struct(&req); err != nil {
		return nil, err
	}
	decoded := make([]decodedFile, 0, len(req.Files))
	for _, f := range req.Files {
		d, err := s.decode(f)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, d)
	}

	shop, err := s.shops.ShopCredentials(ctx, shopDomain)
	if err != nil {
		return nil, err
	}

	inputs := make([]shopify.FileInput, 0, len(decoded))
	for _, d := range decoded {
		key := tool.GenerateUUIDV7()[:8] + "-" + d.name
		u, err := s.bucket.Put(ctx, prefix, key, d.contentType, d.data)
		if err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", d.name, err)
		}
		inputs = append(inputs, shopify.FileInput{Alt: d.name, ContentType: "IMAGE", OriginalSource: u, Filename: d.name})
	}

	ids, err := s.files.CreateFiles(ctx, shop, inputs)
	if err != nil {
		return nil, err
	}
	urls, err := s.waitForPreviews(ctx, shop, ids)
	if err != nil {
		return nil, err
	}
	log.Infow("assets uploaded", "shop", shopDomain, "count", len(urls))
	return &UploadResult{ImageURLs: urls, FilesUploaded: len(decoded)}, nil
}

func (s *Service) decode(f File) (decodedFile, error) {
	name := path.Base(strings.TrimSpace(f.Name))
	if name == "." || name == "/" {
		return decodedFile{}, apperr.New(apperr.CodeInvalidInput, "file name is required")
	}
	payload, declared := f.Base64, ""
	if meta, data, ok := strings.Cut(payload, ","); ok && strings.HasPrefix(meta, "data:") {
		declared, _, _ = strings.Cut(strings.TrimPrefix(meta, "data:"), ";")
		payload = data
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > s.maxBytes+2 {
		return decodedFile{}, apperr.Newf(apperr.CodeInvalidInput, "file %s exceeds %d bytes", name, s.maxBytes)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return decodedFile{}, apperr.Wrap(apperr.CodeInvalidInput, err, fmt.Sprintf("file %s is not valid base64", name))
	}
	if int64(len(data)) > s.maxBytes {
		return decodedFile{}, apperr.Newf(apperr.CodeInvalidInput, "file %s exceeds %d bytes", name, s.maxBytes)
	}

	contentType := declared
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(name))
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return decodedFile{}, apperr.Newf(apperr.CodeInvalidInput, "file %s is not an image", name)
	}
	return decodedFile{name: name, contentType: contentType, data: data}, nil
}

var errPreviewsPending = errors.New("media previews pending")

// waitForPreviews polls the media nodes until each has a preview URL. The
// URLs are returned in id order.
func (s *Service) waitForPreviews(ctx context.Context, shop shopify.Shop, ids []string) ([]string, error) {
	log := logctx.FromCtx(ctx, s.log)
	ctx, cancel := context.WithTimeout(ctx, s.policy.timeout)
	defer cancel()

	found := make(map[string]string, len(ids))
	pending := ids
	attempts := 0
	poll := func() error {
		attempts++
		got, err := s.files.MediaPreviewURLs(ctx, shop, pending)
		if err != nil && ctx.Err() == nil {
			return backoff.Permanent(err)
		}
		for id, u := range got {
			found[id] = u
		}
		pending = lo.Filter(ids, func(id string, _ int) bool {
			_, ok := found[id]
			return !ok
		})
		if len(pending) > 0 {
			return errPreviewsPending
		}
		return nil
	}
	notify := func(_ error, next time.Duration) {
		log.Debugw("media previews pending", "pending", len(pending), "attempt", attempts, "next", next)
	}

	b := backoff.WithContext(s.policy.backOff(s.clock), ctx)
	if err := backoff.RetryNotifyWithTimer(poll, b, notify, s.newTimer()); err != nil {
		if errors.Is(err, errPreviewsPending) || errors.Is(err, context.DeadlineExceeded) {
			log.Warnw("media previews not ready", "pending", pending, "attempts", attempts)
			return nil, apperr.Wrap(apperr.CodeGatewayUnavailable, err,
				fmt.Sprintf("timed out waiting for %d media preview(s)", len(pending)))
		}
		return nil, err
	}

	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		urls = append(urls, found[id])
	}
	return urls, nil
}
