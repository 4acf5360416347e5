package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"productmaster/attribute"
	"productmaster/channel"
	"productmaster/claim"
	"productmaster/threshold"
	"productmaster/validate"
)

// ChannelService is the slice of the channel service the handlers need.
type ChannelService interface {
	Add(ctx context.Context, req channel.AddRequest) (channel.Result, error)
	AddBatch(ctx context.Context, reqs []channel.AddRequest) (channel.Result, error)
	End(ctx context.Context, req channel.EndRequest) (channel.Result, error)
}

// ThresholdService is the slice of the threshold service the handlers need.
type ThresholdService interface {
	Upsert(ctx context.Context, req threshold.UpsertRequest) (threshold.Result, error)
	Remove(ctx context.Context, req threshold.RemoveRequest) (threshold.Result, error)
}

// AttributeService is the slice of the attribute service the handlers need.
type AttributeService interface {
	Set(ctx context.Context, req attribute.SetRequest) (attribute.Result, error)
}

// ClaimService is the slice of the claim service the handlers need.
type ClaimService interface {
	Apply(ctx context.Context, req claim.ApplyRequest) (claim.Result, error)
	Revoke(ctx context.Context, req claim.RevokeRequest) (claim.Result, error)
}

// Handler exposes the maintenance services over JSON. Acting user and program
// come from the authenticated identity, never from the request body.
type Handler struct {
	channels   ChannelService
	thresholds ThresholdService
	attributes AttributeService
	claims     ClaimService
	logger     *zap.Logger
}

func NewHandler(channels ChannelService, thresholds ThresholdService, attributes AttributeService, claims ClaimService, logger *zap.Logger) *Handler {
	return &Handler{
		channels:   channels,
		thresholds: thresholds,
		attributes: attributes,
		claims:     claims,
		logger:     logger,
	}
}

type resultResponse struct {
	Inserted     int64 `json:"inserted"`
	Updated      int64 `json:"updated"`
	Deleted      int64 `json:"deleted"`
	EventsStaged int   `json:"events_staged"`
}

type channelAddBody struct {
	SalesChannel       string `json:"sales_channel"`
	FulfillmentChannel string `json:"fulfillment_channel"`
	Effective          string `json:"effective_date"`
	Expiration         string `json:"expiration_date"`
}

type channelBatchBody struct {
	Items []struct {
		ProductID string `json:"product_id"`
		channelAddBody
	} `json:"items"`
}

type channelEndBody struct {
	SalesChannel       string `json:"sales_channel"`
	FulfillmentChannel string `json:"fulfillment_channel"`
	EndDate            string `json:"end_date"`
}

type thresholdBody struct {
	ThresholdType   string  `json:"threshold_type"`
	Quantity        int     `json:"quantity"`
	DiscountPercent float64 `json:"discount_percent"`
}

type attributeBody struct {
	Values []string `json:"values"`
}

type claimBody struct {
	Text string `json:"text"`
}

// PostChannel handles POST /products/{productID}/channels.
func (h *Handler) PostChannel(w http.ResponseWriter, r *http.Request) {
	var body channelAddBody
	if !h.decode(w, r, &body) {
		return
	}
	req, err := body.toRequest(chi.URLParam(r, "productID"), FromContext(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.channels.Add(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResult(res.Inserted, res.Updated, res.Deleted, res.EventsStaged))
}

// PostChannelBatch handles POST /channels/batch.
func (h *Handler) PostChannelBatch(w http.ResponseWriter, r *http.Request) {
	var body channelBatchBody
	if !h.decode(w, r, &body) {
		return
	}

	id := FromContext(r.Context())
	reqs := make([]channel.AddRequest, 0, len(body.Items))
	var violations []string
	for i, item := range body.Items {
		req, err := item.channelAddBody.toRequest(item.ProductID, id)
		if err != nil {
			if f, ok := validate.AsFailure(err); ok {
				for _, msg := range f.Violations {
					violations = append(violations, fmt.Sprintf("item %d: %s", i, msg))
				}
				continue
			}
			writeError(w, h.logger, err)
			return
		}
		reqs = append(reqs, req)
	}
	if err := validate.NewFailure(violations); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.channels.AddBatch(r.Context(), reqs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResult(res.Inserted, res.Updated, res.Deleted, res.EventsStaged))
}

// PostChannelEnd handles POST /products/{productID}/channels/end.
func (h *Handler) PostChannelEnd(w http.ResponseWriter, r *http.Request) {
	var body channelEndBody
	if !h.decode(w, r, &body) {
		return
	}

	endDate, err := parseDate("end_date", body.EndDate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	id := FromContext(r.Context())
	res, err := h.channels.End(r.Context(), channel.EndRequest{
		ProductID:          chi.URLParam(r, "productID"),
		SalesChannel:       body.SalesChannel,
		FulfillmentChannel: body.FulfillmentChannel,
		EndDate:            endDate,
		ActingUser:         id.User,
		ActingProgram:      id.Program,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResult(res.Inserted, res.Updated, res.Deleted, res.EventsStaged))
}

// PutThreshold handles PUT /products/{productID}/thresholds.
func (h *Handler) PutThreshold(w http.ResponseWriter, r *http.Request) {
	var body thresholdBody
	if !h.decode(w, r, &body) {
		return
	}

	id := FromContext(r.Context())
	res, err := h.thresholds.Upsert(r.Context(), threshold.UpsertRequest{
		ProductID:       chi.URLParam(r, "productID"),
		ThresholdType:   body.ThresholdType,
		Quantity:        body.Quantity,
		DiscountPercent: body.DiscountPercent,
		ActingUser:      id.User,
		ActingProgram:   id.Program,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResult(res.Inserted, res.Updated, res.Deleted, res.EventsStaged))
}

// DeleteThreshold handles DELETE /products/{productID}/thresholds.
func (h *Handler) DeleteThreshold(w http.ResponseWriter, r *http.Request) {
	var body thresholdBody
	if !h.decode(w, r, &body) {
		return
	}

	id := FromContext(r.Context())
	res, err := h.thresholds.Remove(r.Context(), threshold.RemoveRequest{
		ProductID:     chi.URLParam(r, "productID"),
		ThresholdType: body.ThresholdType,
		Quantity:      body.Quantity,
		ActingUser:    id.User,
		ActingProgram: id.Program,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResult(res.Inserted, res.Updated, res.Deleted, res.EventsStaged))
}

// PutAttribute handles PUT /products/{productID}/attributes/{attributeID}.
func (h *Handler) PutAttribute(w http.ResponseWriter, r *http.Request) {
	var body attributeBody
	if !h.decode(w, r, &body) {
		return
	}

	id := FromContext(r.Context())
	res, err := h.attributes.Set(r.Context(), attribute.SetRequest{
		ProductID:     chi.URLParam(r, "productID"),
		AttributeID:   chi.URLParam(r, "attributeID"),
		Values:        body.Values,
		ActingUser:    id.User,
		ActingProgram: id.Program,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResult(res.Inserted, res.Updated, res.Deleted, res.EventsStaged))
}

// PutClaim handles PUT /products/{productID}/claims/{claimCode}.
func (h *Handler) PutClaim(w http.ResponseWriter, r *http.Request) {
	var body claimBody
	if !h.decode(w, r, &body) {
		return
	}

	id := FromContext(r.Context())
	res, err := h.claims.Apply(r.Context(), claim.ApplyRequest{
		ProductID:     chi.URLParam(r, "productID"),
		ClaimCode:     chi.URLParam(r, "claimCode"),
		Text:          body.Text,
		ActingUser:    id.User,
		ActingProgram: id.Program,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResult(res.Inserted, res.Updated, res.Deleted, res.EventsStaged))
}

// DeleteClaim handles DELETE /products/{productID}/claims/{claimCode}.
func (h *Handler) DeleteClaim(w http.ResponseWriter, r *http.Request) {
	id := FromContext(r.Context())
	res, err := h.claims.Revoke(r.Context(), claim.RevokeRequest{
		ProductID:     chi.URLParam(r, "productID"),
		ClaimCode:     chi.URLParam(r, "claimCode"),
		ActingUser:    id.User,
		ActingProgram: id.Program,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResult(res.Inserted, res.Updated, res.Deleted, res.EventsStaged))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

func (b channelAddBody) toRequest(productID string, id Identity) (channel.AddRequest, error) {
	effective, err := parseDate("effective_date", b.Effective)
	if err != nil {
		return channel.AddRequest{}, err
	}
	expiration, err := parseDate("expiration_date", b.Expiration)
	if err != nil {
		return channel.AddRequest{}, err
	}
	return channel.AddRequest{
		ProductID:          productID,
		SalesChannel:       b.SalesChannel,
		FulfillmentChannel: b.FulfillmentChannel,
		Effective:          effective,
		Expiration:         expiration,
		ActingUser:         id.User,
		ActingProgram:      id.Program,
	}, nil
}

// parseDate accepts YYYY-MM-DD. An empty string maps to the zero time; the
// services decide whether that is allowed for the field in question.
func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, validate.NewFailure([]string{fmt.Sprintf("%s must be formatted YYYY-MM-DD", field)})
	}
	return t.UTC(), nil
}

func toResult(inserted, updated, deleted int64, events int) resultResponse {
	return resultResponse{Inserted: inserted, Updated: updated, Deleted: deleted, EventsStaged: events}
}
