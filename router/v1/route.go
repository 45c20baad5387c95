package v1

import (
	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/dukapi/handler"
	"github.com/mstgnz/dukapi/infra/auth"
	"github.com/mstgnz/dukapi/infra/middle"
)

// Handlers groups the v1 API handlers
type Handlers struct {
	Auth       *handler.AuthHandler
	Users      *handler.UsersHandler
	Catalog    *handler.CatalogHandler
	Products   *handler.ProductHandler
	Addresses  *handler.AddressHandler
	Orders     *handler.OrderHandler
	Payments   *handler.PaymentHandler
	Engagement *handler.EngagementHandler
	Audit      *handler.AuditHandler
}

// Routes registers all API routes
func Routes(r chi.Router, h Handlers, jwtService *auth.JWTService) {
	authenticated := middle.JWTAuth(jwtService)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Post("/register/superadmin", h.Auth.RegisterSuperadmin)
		r.Post("/login", h.Auth.Login)
		r.Get("/verify-email", h.Auth.VerifyEmail)
		r.Post("/verify-email", h.Auth.VerifyEmail)
		r.Post("/resend-verification", h.Auth.ResendVerification)
		r.Post("/forgot-password", h.Auth.ForgotPassword)
		r.Post("/reset-password", h.Auth.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Get("/me", h.Auth.Me)
			r.Get("/verify-token", h.Auth.VerifyToken)
		})
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(authenticated, middle.RequireRole(auth.RoleSuperadmin))
		r.Get("/", h.Users.List)
		r.Get("/stats", h.Users.Stats)
		r.Post("/admins", h.Users.CreateAdmin)
		r.Get("/{userID}", h.Users.Get)
		r.Delete("/{userID}", h.Users.Delete)
	})

	// storefront
	r.Get("/categories", h.Catalog.ListCategories)
	r.Get("/subcategories", h.Catalog.ListSubcategories)
	r.Get("/subcategories/{subcategoryID}/products", h.Products.BySubcategory)
	r.Get("/subcategories/{subcategoryID}/specifications", h.Catalog.ListSpecifications)
	r.Get("/products", h.Products.List)
	r.Get("/products/{productID}", h.Products.Get)
	r.Get("/products/{productID}/images", h.Products.ListImages)
	r.Get("/products/{productID}/specifications", h.Products.ListSpecValues)
	r.Get("/products/{productID}/reviews", h.Engagement.ProductReviews)
	r.Get("/banners", h.Engagement.ListBanners)
	r.Post("/newsletter", h.Engagement.Subscribe)

	// customer account
	r.Group(func(r chi.Router) {
		r.Use(authenticated)

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/", h.Addresses.List)
			r.Post("/", h.Addresses.Create)
			r.Get("/{addressID}", h.Addresses.Get)
			r.Put("/{addressID}", h.Addresses.Update)
			r.Put("/{addressID}/default", h.Addresses.SetDefault)
			r.Delete("/{addressID}", h.Addresses.Delete)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.Orders.List)
			r.Post("/", h.Orders.Create)
			r.Get("/available-transactions", h.Orders.AvailableTransactions)
			r.Get("/{orderID}", h.Orders.Get)
			r.Post("/{orderID}/cancel-request", h.Orders.RequestCancel)
			r.Get("/{orderID}/transaction", h.Payments.LatestForOrder)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", h.Payments.List)
			r.Post("/transact", h.Payments.Transact)
			r.Get("/query/{checkoutRequestID}", h.Payments.Query)
		})

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", h.Engagement.ListFavorites)
			r.Post("/", h.Engagement.AddFavorite)
			r.Delete("/{favoriteID}", h.Engagement.DeleteFavorite)
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/mine", h.Engagement.MyReviews)
			r.Post("/", h.Engagement.CreateReview)
			r.Patch("/{reviewID}", h.Engagement.UpdateReview)
			r.Delete("/{reviewID}", h.Engagement.DeleteReview)
		})
	})

	// staff
	r.Group(func(r chi.Router) {
		r.Use(authenticated, middle.RequireStaff())

		r.Post("/categories", h.Catalog.CreateCategory)
		r.Put("/categories/{categoryID}", h.Catalog.UpdateCategory)
		r.Delete("/categories/{categoryID}", h.Catalog.DeleteCategory)

		r.Post("/subcategories", h.Catalog.CreateSubcategory)
		r.Put("/subcategories/{subcategoryID}", h.Catalog.UpdateSubcategory)
		r.Delete("/subcategories/{subcategoryID}", h.Catalog.DeleteSubcategory)
		r.Post("/subcategories/{subcategoryID}/specifications", h.Catalog.CreateSpecification)
		r.Put("/subcategories/{subcategoryID}/specifications/{specificationID}", h.Catalog.UpdateSpecification)
		r.Delete("/subcategories/{subcategoryID}/specifications/{specificationID}", h.Catalog.DeleteSpecification)

		r.Post("/products", h.Products.Create)
		r.Patch("/products/{productID}", h.Products.Update)
		r.Delete("/products/{productID}", h.Products.Delete)
		r.Post("/products/{productID}/images", h.Products.AddImage)
		r.Delete("/products/{productID}/images/{imageID}", h.Products.DeleteImage)
		r.Post("/products/{productID}/specifications", h.Products.AddSpecValue)
		r.Post("/products/recalculate-ratings", h.Engagement.RecalculateRatings)

		r.Post("/upload-image", h.Products.UploadImage)

		r.Post("/banners", h.Engagement.CreateBanner)
		r.Patch("/banners/{bannerID}", h.Engagement.UpdateBanner)
		r.Delete("/banners/{bannerID}", h.Engagement.DeleteBanner)
		r.Delete("/banners/{bannerID}/image", h.Engagement.RemoveBannerImage)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/banners", h.Engagement.AdminListBanners)
			r.Get("/orders", h.Orders.AdminList)
			r.Put("/orders/{orderID}/status", h.Orders.UpdateStatus)
			r.Get("/payments/logs", h.Audit.GatewayLogs)
			r.Get("/payments/stats", h.Audit.Stats)
			r.Get("/payments/{checkoutRequestID}/callbacks", h.Audit.Callbacks)
		})
	})
}
