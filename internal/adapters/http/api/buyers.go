package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/okian/adroute/internal/domain/model"
	"github.com/okian/adroute/internal/domain/types"
	"github.com/okian/adroute/pkg/logger"
)

// MsgBuyerAdded acknowledges a registration.
const MsgBuyerAdded = "Buyer has been added"

// BuyerDependencies defines the interface for buyer operations.
type BuyerDependencies interface {
	RegisterBuyer(ctx context.Context, b *model.Buyer) error
	GetBuyer(ctx context.Context, id string) (types.BuyerView, error)
}

// BuyersHandler handles buyer registration and lookup.
type BuyersHandler struct {
	deps         BuyerDependencies
	maxBodyBytes int64
}

// NewBuyersHandler creates a new buyers handler.
func NewBuyersHandler(deps BuyerDependencies, maxBodyBytes int64) *BuyersHandler {
	return &BuyersHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

// HandlePostBuyer handles POST /buyers requests.
func (h *BuyersHandler) HandlePostBuyer(w http.ResponseWriter, r *http.Request) {
	b, err := h.decode(w, r)
	if err != nil {
		logger.Get().Debug(r.Context(), "rejected buyer body", logger.Error(err))
		writeErr(w, err)
		return
	}
	if err := h.deps.RegisterBuyer(r.Context(), b); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: MsgBuyerAdded})
}

// decode reads a buyer. Bodies that are not JSON are ErrMalformedJSON; JSON
// whose values have the wrong types is a schema violation.
func (h *BuyersHandler) decode(w http.ResponseWriter, r *http.Request) (*model.Buyer, error) {
	const op = "api.decode_buyer"
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	defer body.Close()

	var b model.Buyer
	dec := json.NewDecoder(body)
	err := dec.Decode(&b)
	if err == nil {
		err = expectEOF(dec)
	}
	var typeErr *json.UnmarshalTypeError
	var sizeErr *http.MaxBytesError
	switch {
	case err == nil:
		return &b, nil
	case errors.As(err, &typeErr):
		return nil, model.NewError(op, model.ErrValidation, model.MsgInvalidSchema, err)
	case errors.As(err, &sizeErr):
		return nil, model.NewError(op, ErrBodyTooLarge, MsgBodyTooLarge, err)
	default:
		return nil, model.NewError(op, ErrMalformedJSON, MsgMalformedJSON, err)
	}
}

// expectEOF rejects anything but whitespace after the buyer document.
func expectEOF(dec *json.Decoder) error {
	var extra json.RawMessage
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return err
	default:
		return errTrailingData
	}
}

// HandleGetBuyer handles GET /buyers/:id requests.
func (h *BuyersHandler) HandleGetBuyer(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	view, err := h.deps.GetBuyer(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
