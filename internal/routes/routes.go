package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/config"
	"github.com/example/aristotle/internal/handlers"
	"github.com/example/aristotle/internal/middleware"
	"github.com/example/aristotle/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	sms := services.NewSMSService(cfg.EskizBaseURL, cfg.EskizEmail, cfg.EskizPassword)
	certs := services.NewCertificateService(db, cfg.CertificateDomain, cfg.MediaDir)
	quizzes := services.NewQuizService(db, certs)
	orders := services.NewOrderService(db)
	paycom := services.NewPaycomService(db, orders)
	subscribe := services.NewSubscribeService(db, cfg.PaycomSubscribeURL, cfg.PaycomMerchantID, cfg.PaycomSubscribeKey)

	authHandler := handlers.NewAuthHandler(db, cfg, sms)
	passwordHandler := handlers.NewPasswordHandler(db, sms)
	profileHandler := handlers.NewProfileHandler(db)
	courseHandler := handlers.NewCourseHandler(db, certs)
	quizHandler := handlers.NewQuizHandler(db, quizzes)
	cartHandler := handlers.NewCartHandler(db)
	orderHandler := handlers.NewOrderHandler(db, cfg, subscribe)
	cardHandler := handlers.NewCardHandler(db, subscribe)
	paycomHandler := handlers.NewPaycomHandler(db, paycom)

	api := app.Group("/api")
	authRequired := middleware.AuthMiddleware(cfg)
	authOptional := middleware.OptionalAuthMiddleware(cfg)

	// Accounts
	auth := api.Group("/auth/v1")
	auth.Post("/create", authHandler.Register)
	auth.Post("/activate", authHandler.Activate)
	auth.Post("/resend/sms", authHandler.ResendSMS)
	auth.Post("/login", authHandler.Login)
	auth.Post("/password/reset", passwordHandler.ResetSend)
	auth.Post("/password/before/restore", passwordHandler.ResetVerify)
	auth.Post("/password/restore", passwordHandler.ResetRestore)
	auth.Post("/before/change", authRequired, passwordHandler.ChangeVerify)
	auth.Post("/password/change", authRequired, passwordHandler.Change)
	auth.Get("/user", authRequired, profileHandler.GetUser)
	auth.Put("/user", authRequired, profileHandler.UpdateUser)

	// Profile
	profile := api.Group("/profiles/v1", authRequired)
	profile.Get("/notifications", profileHandler.Notifications)
	profile.Patch("/notifications/:id/hide", profileHandler.HideNotification)
	profile.Get("/balance", profileHandler.Balance)
	profile.Get("/referral", profileHandler.ReferralInfo)

	// Catalog
	courses := api.Group("/courses/v1", authOptional)
	courses.Get("/categories", courseHandler.ListCategories)
	courses.Get("/courses", courseHandler.ListCourses)
	courses.Get("/courses/:slug", courseHandler.GetCourse)
	courses.Get("/courses/:courseId/topics", courseHandler.ListTopics)
	courses.Get("/certificated-courses", courseHandler.ListCertificatedCourses)
	courses.Get("/lessons/:id", authRequired, courseHandler.GetLesson)
	courses.Patch("/lessons/:id/status", authRequired, courseHandler.UpdateLessonStatus)
	courses.Get("/certificates", authRequired, courseHandler.MyCertificates)

	// Public certificate verification (QR landing)
	app.Get("/certificates-verify/:hash", courseHandler.VerifyCertificate)

	// Quizzes
	quiz := api.Group("/quizzes/v1", authRequired)
	quiz.Get("/all-quizzes", quizHandler.ListAll)
	quiz.Get("/my-quizzes", quizHandler.ListCompleted)
	quiz.Get("/quizzes", quizHandler.ListUncompleted)
	quiz.Get("/quizzes/:slug", quizHandler.GetUncompleted)
	quiz.Get("/quizzes/:slug/questions", quizHandler.ListQuestions)
	quiz.Get("/quizzes/:slug/start", quizHandler.Start)
	quiz.Patch("/save-answer", quizHandler.SaveAnswer)
	quiz.Post("/quizzes/:slug/submit", quizHandler.Submit)

	// Cart
	carts := api.Group("/carts/v1", authRequired)
	carts.Get("/active/cart", cartHandler.ActiveCart)
	carts.Post("/add/to/cart", cartHandler.AddToCart)
	carts.Post("/remove/unpaid/course", cartHandler.RemoveFromCart)
	carts.Get("/active/wishlist", cartHandler.Wishlist)
	carts.Post("/add/to/desire", cartHandler.AddToWishlist)
	carts.Post("/remove/desire/course", cartHandler.RemoveFromWishlist)

	// Orders and payments
	ordersGroup := api.Group("/orders/v1")
	ordersGroup.Get("/order/checkout", authRequired, orderHandler.Checkout)
	ordersGroup.Get("/active/order", authRequired, orderHandler.ActiveOrder)
	ordersGroup.Get("/orders", authRequired, orderHandler.ListOrders)
	ordersGroup.Get("/orders/:id", authRequired, orderHandler.GetOrder)
	ordersGroup.Post("/merchant-pay", authRequired, orderHandler.MerchantPayURL)
	ordersGroup.Post("/receipt-pay", authRequired, orderHandler.ReceiptPay)
	ordersGroup.Post("/paycom-pay", middleware.PaycomAuthMiddleware(cfg.PaycomMerchantKey), paycomHandler.Pay)

	// Stored cards
	cards := api.Group("/billing/v1", authRequired)
	cards.Get("/cards", cardHandler.List)
	cards.Post("/cards", cardHandler.Create)
	cards.Post("/cards/:id/verify-code", cardHandler.RequestVerifyCode)
	cards.Post("/cards/:id/verify", cardHandler.Verify)
	cards.Delete("/cards/:id", cardHandler.Remove)
}
