package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"tophome-storefront/internal/domain"
	"tophome-storefront/internal/middleware"
	"tophome-storefront/internal/observability"
)

// Page template names, one file per page under templates/
const (
	PageHome           = "home"
	PageProduct        = "product"
	PageWishlist       = "wishlist"
	PageNotFound       = "not_found"
	PageLogin          = "login"
	PageRegister       = "register"
	PageForgotPassword = "forgot_password"
	PageVerifyOTP      = "verify_otp"
	PageResetPassword  = "reset_password"
)

var pageNames = []string{
	PageHome, PageProduct, PageWishlist, PageNotFound,
	PageLogin, PageRegister, PageForgotPassword, PageVerifyOTP, PageResetPassword,
}

// PageData is what every page template receives
type PageData struct {
	Title     string
	Session   domain.Session
	CSRFToken string
	ReturnTo  string
	Error     string
	Notice    string
	// Form echoes submitted values back; Fields holds per-field errors
	Form   map[string]string
	Fields map[string]string
	Saved  map[domain.ProductID]bool
	Data   any
}

type toggleView struct {
	Product   domain.Product
	Saved     bool
	CSRFToken string
	ReturnTo  string
}

type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses the layout together with each page from fsys
func NewRenderer(fsys fs.FS) (*Renderer, error) {
	funcs := template.FuncMap{
		"price": formatPrice,
		"toggleData": func(p PageData, product domain.Product) toggleView {
			return toggleView{
				Product:   product,
				Saved:     p.Saved[product.ID],
				CSRFToken: p.CSRFToken,
				ReturnTo:  p.ReturnTo,
			}
		},
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(fsys, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse page %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages}, nil
}

// Render executes the page into a buffer first so a template error never
// leaves a half-written response.
func (rn *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, data PageData) {
	logger := observability.FromContext(r.Context())

	tmpl, ok := rn.pages[name]
	if !ok {
		logger.Error("unknown page", slog.String("page", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		logger.Error("failed to render page", slog.String("page", name), slog.String("error", err.Error()))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// newPage fills the fields shared by every page from the request context
func newPage(r *http.Request, title string) PageData {
	data := PageData{
		Title:     title,
		CSRFToken: middleware.GetCSRFToken(r.Context()),
		ReturnTo:  r.URL.RequestURI(),
	}
	if sh, ok := middleware.GetShopper(r.Context()); ok {
		data.Session = sh.Session.Snapshot()
		if sh.Wishlist != nil {
			items := sh.Wishlist.Items()
			data.Saved = make(map[domain.ProductID]bool, len(items))
			for _, p := range items {
				data.Saved[p.ID] = true
			}
		}
	}
	return data
}

func formatPrice(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	return strings.TrimSuffix(s, ".00") + " ج.م"
}
