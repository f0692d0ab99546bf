package apiv1

import (
	"net/http"
	"strings"

	"installment-engine/internal/domain/model"
	"installment-engine/internal/infra/api"
	"installment-engine/internal/infra/logging"
	"installment-engine/internal/usecase"

	"github.com/go-chi/chi/v5"
)

// POST /api/v1/orders
func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var body createOrderRequest
	if err := decode(w, r, &body); err != nil {
		s.badBody(w, err)
		return
	}
	p := caller(r)
	res, err := s.orders.CreateOrder(r.Context(), usecase.CreateOrderRequest{
		BuyerID:       p.Subject,
		ProductRef:    strings.TrimSpace(body.ProductRef),
		Price:         body.Price,
		Days:          body.Days,
		CouponCode:    strings.TrimSpace(body.CouponCode),
		ReferrerID:    strings.TrimSpace(body.ReferrerID),
		FundingSource: model.FundingSource(strings.ToLower(strings.TrimSpace(body.FundingSource))),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, toCreateOrderResponse(res))
}

// GET /api/v1/orders
func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orders.ListOrders(r.Context(), caller(r).Subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]Order, 0, len(orders))
	for _, o := range orders {
		items = append(items, toOrder(o))
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GET /api/v1/orders/{id}
func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := caller(r)
	o, err := s.orders.GetOrder(logging.WithOrderID(r.Context(), id), id, p.Subject, p.Admin())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, toOrder(o))
}

// POST /api/v1/orders/{id}/pay settles the next installment from the wallet or with the
// proof returned by the gateway checkout.
func (s *Server) payOrder(w http.ResponseWriter, r *http.Request) {
	var body payRequest
	if err := decode(w, r, &body); err != nil {
		s.badBody(w, err)
		return
	}
	method := model.PaymentMethod(strings.ToLower(strings.TrimSpace(body.Method)))
	if method == "" {
		method = model.PaymentMethodWallet
		if !body.gatewayProof.empty() {
			method = model.PaymentMethodGateway
		}
	}

	id := chi.URLParam(r, "id")
	req := model.SettleRequest{
		OrderID: id,
		BuyerID: caller(r).Subject,
		Method:  method,
		Source:  model.SourceClient,
	}
	if method == model.PaymentMethodGateway {
		c := body.capture()
		req.Gateway = &c
	}

	res, err := s.payments.SettleNextInstallment(logging.WithOrderID(r.Context(), id), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, toSettlement(res))
}

// POST /api/v1/orders/{id}/checkout opens a gateway order for the next installment.
func (s *Server) installmentCheckout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	co, err := s.payments.CreateInstallmentCheckout(logging.WithOrderID(r.Context(), id), id, caller(r).Subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, toCheckout(co))
}

// POST /api/v1/orders/checkout/combined
func (s *Server) combinedCheckout(w http.ResponseWriter, r *http.Request) {
	var body combinedCheckoutRequest
	if err := decode(w, r, &body); err != nil {
		s.badBody(w, err)
		return
	}
	co, err := s.payments.CreateCombinedCheckout(r.Context(), caller(r).Subject, body.OrderIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, toCheckout(co))
}

// POST /api/v1/orders/{id}/cancel
func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	s.cancel(w, r, false)
}

// POST /api/v1/admin/orders/{id}/cancel
func (s *Server) adminCancelOrder(w http.ResponseWriter, r *http.Request) {
	s.cancel(w, r, true)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request, admin bool) {
	id := chi.URLParam(r, "id")
	o, err := s.orders.CancelOrder(logging.WithOrderID(r.Context(), id), id, caller(r).Subject, admin)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, toOrder(o))
}
