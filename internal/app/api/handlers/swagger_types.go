package handlers

import (
	"github.com/fatflowers/pcbuilder/internal/app/service/asset"
	"github.com/fatflowers/pcbuilder/internal/app/service/statistics"
	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespError is the envelope of a failed call.
type RespError struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    response.ErrorBody       `json:"data"`
}

type RespHealth struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    map[string]string        `json:"data"`
}

type RespSetSubscription struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    SetSubscriptionResponse  `json:"data"`
}

type RespCancelSubscription struct {
	Code    response.APIResponseCode   `json:"code"`
	Message string                     `json:"message"`
	Data    CancelSubscriptionResponse `json:"data"`
}

type RespPricingPage struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PricingPageResponse      `json:"data"`
}

type RespPlanDetails struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PlanDetailsResponse      `json:"data"`
}

type RespWidget struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Widget            `json:"data"`
}

type RespWidgets struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.Widget          `json:"data"`
}

type RespSupportRequest struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.SupportRequest    `json:"data"`
}

type RespUpload struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    asset.UploadResult       `json:"data"`
}

// RespListSubscriptions wraps ListSubscriptionsResponse in the standard envelope.
type RespListSubscriptions struct {
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    ListSubscriptionsResponse `json:"data"`
}

type RespRenewals struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    []models.SubscriptionRenewal `json:"data"`
}

// RespSubscriptionStatistic wraps SubscriptionStatisticResponse in the standard envelope.
type RespSubscriptionStatistic struct {
	Code    response.APIResponseCode                 `json:"code"`
	Message string                                   `json:"message"`
	Data    statistics.SubscriptionStatisticResponse `json:"data"`
}

type RespRegisterMerchant struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    RegisterMerchantResponse `json:"data"`
}
