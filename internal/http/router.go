package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type Deps struct {
	Sessions      SessionStore
	Backend       AdminBackend
	Widget        PaymentWidget
	Receipts      ReceiptReader
	Gate          TokenChecker
	Logger        zerolog.Logger
	ContactEmail  string
	Timeout       time.Duration
	MaxUploadSize int64
	SecureCookies bool
}

func NewRouter(d Deps) http.Handler {
	menuHandler := NewMenuHandler(d.Backend, d.Timeout)
	cartHandler := NewCartHandler(d.Backend, d.Timeout)
	checkoutHandler := NewCheckoutHandler(d.Widget, d.ContactEmail, d.Timeout)
	ordersHandler := NewOrdersHandler(d.Receipts, d.ContactEmail, d.Timeout)
	adminHandler := NewAdminHandler(d.Backend, d.Timeout, d.MaxUploadSize)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Hijacked connection: no compress or timeout wrapping.
		r.With(SessionMiddleware(d.Sessions, d.SecureCookies)).Get("/cart/ws", cartHandler.Subscribe)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(d.Timeout + 5*time.Second))
			r.Use(middleware.Compress(5))

			r.Get("/menu", menuHandler.ListMenu)
			r.Get("/menu/{id}", menuHandler.GetMenuItem)
			r.Get("/orders/{paymentId}", ordersHandler.TrackOrder)

			r.Group(func(r chi.Router) {
				r.Use(SessionMiddleware(d.Sessions, d.SecureCookies))

				r.Get("/cart", cartHandler.GetCart)
				r.Get("/cart/count", cartHandler.Count)
				r.Delete("/cart", cartHandler.ClearCart)
				r.Post("/cart/items", cartHandler.AddItem)
				r.Put("/cart/items/{id}", cartHandler.UpdateQuantity)
				r.Delete("/cart/items/{id}", cartHandler.RemoveItem)

				r.Get("/checkout", checkoutHandler.Status)
				r.Post("/checkout", checkoutHandler.Start)
				r.Delete("/checkout", checkoutHandler.Cancel)
				r.Post("/checkout/complete", checkoutHandler.Complete)
				r.Post("/checkout/dismiss", checkoutHandler.Dismiss)
				r.Get("/checkout/receipt", checkoutHandler.Receipt)
				r.Get("/checkout/receipt/invoice", checkoutHandler.Invoice)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Post("/login", adminHandler.Login)

				r.Group(func(r chi.Router) {
					r.Use(AdminAuth(d.Gate))

					r.Get("/verify", adminHandler.Verify)
					r.Get("/menu", adminHandler.ListMenu)
					r.Post("/menu", adminHandler.CreateMenuItem)
					r.Get("/menu/export", adminHandler.ExportMenu)
					r.Put("/menu/{id}", adminHandler.UpdateMenuItem)
					r.Delete("/menu/{id}", adminHandler.DeleteMenuItem)
					r.Patch("/menu/{id}/availability", adminHandler.SetAvailability)
					r.Get("/profile", adminHandler.Profile)
					r.Put("/profile", adminHandler.UpdateProfile)
					r.Post("/email-change", adminHandler.RequestEmailChange)
					r.Post("/email-change/verify", adminHandler.VerifyEmailChange)
				})
			})
		})
	})

	return r
}
