package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"tophome-storefront/internal/api"
	"tophome-storefront/internal/domain"
	"tophome-storefront/internal/middleware"
	"tophome-storefront/internal/observability"
	"tophome-storefront/internal/shopper"
	"tophome-storefront/internal/wishlist"

	"github.com/go-chi/chi/v5"
)

// ProductLookup resolves a product id to the product stored in the wishlist
type ProductLookup interface {
	Get(ctx context.Context, id domain.ProductID) (*domain.Product, error)
}

// WishlistHandler serves the wishlist page and the wishlist API
type WishlistHandler struct {
	products ProductLookup
	renderer *Renderer
}

func NewWishlistHandler(products ProductLookup, renderer *Renderer) *WishlistHandler {
	return &WishlistHandler{
		products: products,
		renderer: renderer,
	}
}

// WishlistResponse is the wishlist with the ids whose change is still in flight
type WishlistResponse struct {
	Items   []domain.Product   `json:"items"`
	Pending []domain.ProductID `json:"pending"`
}

// ResultResponse reports a single add or remove
type ResultResponse struct {
	ProductID domain.ProductID `json:"productId"`
	Op        wishlist.Op      `json:"op"`
	Outcome   wishlist.Outcome `json:"outcome"`
	Error     string           `json:"error,omitempty"`
	WishlistResponse
}

// Page renders the shopper's wishlist
func (h *WishlistHandler) Page(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}
	data := newPage(r, "المفضلة")
	data.Data = map[string]any{"Items": sh.Wishlist.Items()}
	h.renderer.Render(w, r, http.StatusOK, PageWishlist, data)
}

// TogglePage handles the toggle form and returns to the page it came from.
// A failed toggle has already been rolled back, so the redirect shows the
// list as it was.
func (h *WishlistHandler) TogglePage(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}

	id, ok := productID(w, r)
	if !ok {
		return
	}
	product, err := h.lookup(r.Context(), sh, id)
	if err != nil {
		h.renderer.Render(w, r, http.StatusNotFound, PageNotFound, newPage(r, "غير موجود"))
		return
	}

	sh.Wishlist.Toggle(r.Context(), *product)
	http.Redirect(w, r, returnTo(r.PostFormValue("return_to"), "/wishlist"), http.StatusSeeOther)
}

// Get returns the wishlist as JSON
func (h *WishlistHandler) Get(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snapshot(sh.Wishlist))
}

// Add puts a product in the wishlist
func (h *WishlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}
	id, ok := productID(w, r)
	if !ok {
		return
	}
	product, err := h.lookup(r.Context(), sh, id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	h.writeResult(w, r, sh, sh.Wishlist.Add(r.Context(), *product))
}

// Remove takes a product out of the wishlist
func (h *WishlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}
	id, ok := productID(w, r)
	if !ok {
		return
	}
	h.writeResult(w, r, sh, sh.Wishlist.Remove(r.Context(), id))
}

// Toggle adds the product when absent and removes it when present
func (h *WishlistHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}
	id, ok := productID(w, r)
	if !ok {
		return
	}
	product, err := h.lookup(r.Context(), sh, id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	h.writeResult(w, r, sh, sh.Wishlist.Toggle(r.Context(), *product))
}

// Refresh refetches the wishlist from the API
func (h *WishlistHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}
	if err := sh.Wishlist.Refresh(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": userMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, snapshot(sh.Wishlist))
}

func (h *WishlistHandler) writeResult(w http.ResponseWriter, r *http.Request, sh *shopper.Shopper, res wishlist.Result) {
	resp := ResultResponse{
		ProductID:        res.ProductID,
		Op:               res.Op,
		Outcome:          res.Outcome,
		WishlistResponse: snapshot(sh.Wishlist),
	}

	status := http.StatusOK
	if res.Outcome == wishlist.OutcomeRolledBack {
		resp.Error = userMessage(res.Err)
		status = http.StatusBadGateway
		observability.FromContext(r.Context()).Info("wishlist change rolled back",
			slog.String("product_id", res.ProductID.String()),
			slog.String("op", string(res.Op)))
	}
	writeJSON(w, status, resp)
}

// lookup prefers the copy already in the wishlist so removing a product
// that left the catalog still works.
func (h *WishlistHandler) lookup(ctx context.Context, sh *shopper.Shopper, id domain.ProductID) (*domain.Product, error) {
	for _, p := range sh.Wishlist.Items() {
		if p.ID == id {
			return &p, nil
		}
	}
	return h.products.Get(ctx, id)
}

func (h *WishlistHandler) shopper(w http.ResponseWriter, r *http.Request) (*shopper.Shopper, bool) {
	sh, ok := middleware.GetShopper(r.Context())
	if !ok {
		http.Error(w, `{"error":"Shopper not found"}`, http.StatusInternalServerError)
		return nil, false
	}
	return sh, true
}

// productID reads the id route param. The favorites API only accepts
// numeric ids, so anything else is rejected before any local change.
func productID(w http.ResponseWriter, r *http.Request) (domain.ProductID, bool) {
	param := chi.URLParam(r, "productId")
	if param == "" {
		param = chi.URLParam(r, "id")
	}
	n, err := domain.ProductID(param).Int()
	if err != nil || n < 0 {
		http.Error(w, `{"error":"Invalid product id"}`, http.StatusBadRequest)
		return "", false
	}
	// "+42" and "042" name product 42
	return domain.ProductID(strconv.Itoa(n)), true
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrProductNotFound) {
		http.Error(w, `{"error":"Product not found"}`, http.StatusNotFound)
		return
	}
	http.Error(w, `{"error":"Failed to retrieve product"}`, http.StatusInternalServerError)
}

func snapshot(s *wishlist.Syncer) WishlistResponse {
	resp := WishlistResponse{
		Items:   s.Items(),
		Pending: s.PendingIDs(),
	}
	if resp.Items == nil {
		resp.Items = []domain.Product{}
	}
	if resp.Pending == nil {
		resp.Pending = []domain.ProductID{}
	}
	return resp
}

// userMessage is the shopper-facing text of a failed remote call
func userMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return api.FallbackMessage
}

// returnTo accepts only local paths
func returnTo(target, fallback string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	return target
}
