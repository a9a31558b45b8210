package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"storemate/m/domain"
	"storemate/m/internal/cache"
	"storemate/m/internal/dashboard"
	"storemate/m/internal/sales"
)

type ctxKey string

const (
	ctxUserID ctxKey = "userID"
	ctxRole   ctxKey = "role"
)

// Dashboard widget defaults, matching the original dashboard view.
const (
	expiryWindowDays  = 30
	lowStockThreshold = 10
	lowStockMax       = 10
	topProductCount   = 5
	chartDays         = 7
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db      *sqlx.DB
	results *cache.Cache
	metrics *dashboard.Service
	sales   *sales.Service
	secret  string
}

// New constructs a Handler and the services behind it.
func New(db *sqlx.DB, results *cache.Cache, secret string) *Handler {
	return &Handler{
		db:      db,
		results: results,
		metrics: dashboard.NewService(db, results),
		sales:   sales.NewService(db, results),
		secret:  secret,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"}, // Change "*" to a list of allowed domains (e.g., ["http://localhost:3000"])
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/suppliers", func(r chi.Router) {
			r.Post("/", h.createSupplier)
			r.Get("/", h.listSuppliers)
			r.Get("/{id}", h.getSupplier)
			r.Put("/{id}", h.updateSupplier)
			r.Delete("/{id}", h.deleteSupplier)
		})

		pr.Route("/products", func(r chi.Router) {
			r.Post("/", h.createProduct)
			r.Get("/", h.listProducts)
			r.Get("/available", h.availableProducts)
			r.Get("/{id}", h.getProduct)
			r.Put("/{id}", h.updateProduct)
			r.Delete("/{id}", h.deleteProduct)
		})

		pr.Route("/sales", func(r chi.Router) {
			r.Post("/", h.createSale)
			r.Get("/", h.listSales)
			r.Get("/{id}", h.getSale)
		})

		pr.Get("/users", h.listUsers)
		pr.Get("/profile", h.profile)
		pr.Get("/dashboard", h.dashboardSummary)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers

type authClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64, role string) (string, error) {
	claims := authClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role := r.Context().Value(ctxRole)
	if role == nil {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	current := role.(string)
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

func userIDFromContext(r *http.Request) int64 {
	if val := r.Context().Value(ctxUserID); val != nil {
		if id, ok := val.(int64); ok {
			return id
		}
	}
	return 0
}

// Auth Handlers

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" || req.Role == "" {
		respondError(w, http.StatusBadRequest, "name, email, password and role are required")
		return
	}
	if req.Role != "admin" && req.Role != "seller" {
		respondError(w, http.StatusBadRequest, "role must be admin or seller")
		return
	}
	if !isValidEmail(req.Email) {
		respondError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if !isStrongPassword(req.Password) {
		respondError(w, http.StatusBadRequest, "password must have at least 8 characters with upper case, lower case and a digit")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}

	var userID int64
	err = h.db.QueryRowx(`INSERT INTO users (name, email, password, role) VALUES ($1, $2, $3, $4) RETURNING id`,
		req.Name, strings.ToLower(req.Email), hashed, req.Role).Scan(&userID)
	if err != nil {
		if strings.Contains(err.Error(), "unique constraint") || strings.Contains(err.Error(), "duplicate key") {
			respondError(w, http.StatusConflict, "email already exists")
		} else {
			respondError(w, http.StatusInternalServerError, "db error: "+err.Error())
		}
		return
	}

	token, err := h.generateToken(userID, req.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: domain.User{ID: userID, Name: req.Name, Email: strings.ToLower(req.Email), Role: req.Role}})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user domain.User
	err := h.db.Get(&user, `SELECT id, name, email, password, role FROM users WHERE email = $1`, strings.ToLower(req.Email))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.generateToken(user.ID, user.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	user.Password = ""
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !isStrongPassword(payload.NewPassword) {
		respondError(w, http.StatusBadRequest, "password must have at least 8 characters with upper case, lower case and a digit")
		return
	}
	uid := userIDFromContext(r)
	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}
	if _, err := h.db.Exec(`UPDATE users SET password = $1 WHERE id = $2`, hashed, uid); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// Supplier handlers

type supplierRequest struct {
	TradeName string   `json:"trade_name"`
	Email     *string  `json:"email"`
	Phone     *string  `json:"phone"`
	City      *string  `json:"city"`
	State     *string  `json:"state"`
	Address   *string  `json:"address"`
	District  *string  `json:"district"`
	ZipCode   *string  `json:"zip_code"`
	Freight   *float64 `json:"freight"`
	Active    *bool    `json:"active"`
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.TradeName) == "" {
		respondError(w, http.StatusBadRequest, "trade_name is required")
		return
	}
	if req.Email != nil && *req.Email != "" && !isValidEmail(*req.Email) {
		respondError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	var id int64
	err := h.db.QueryRowx(`INSERT INTO suppliers (trade_name, email, phone, city, state, address, district, zip_code, freight, active)
	                       VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		strings.TrimSpace(req.TradeName), req.Email, req.Phone, req.City, req.State, req.Address, req.District, req.ZipCode, req.Freight, active).Scan(&id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create supplier")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "trade_name": req.TradeName})
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	var suppliers []domain.Supplier
	if err := h.db.Select(&suppliers, `SELECT id, trade_name, email, phone, city, state, address, district, zip_code, freight, active, created_at FROM suppliers ORDER BY trade_name`); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list suppliers")
		return
	}
	if suppliers == nil {
		suppliers = []domain.Supplier{}
	}
	respondJSON(w, http.StatusOK, suppliers)
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid supplier id")
		return
	}
	var supplier domain.Supplier
	if err := h.db.Get(&supplier, `SELECT id, trade_name, email, phone, city, state, address, district, zip_code, freight, active, created_at FROM suppliers WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "supplier not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load supplier")
		return
	}
	respondJSON(w, http.StatusOK, supplier)
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid supplier id")
		return
	}
	var req supplierRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.TradeName) == "" {
		respondError(w, http.StatusBadRequest, "trade_name is required")
		return
	}
	if req.Email != nil && *req.Email != "" && !isValidEmail(*req.Email) {
		respondError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	// Omitted optional fields clear the stored value; active keeps its
	// current state unless sent.
	res, err := h.db.Exec(`UPDATE suppliers SET trade_name = $1, email = $2, phone = $3, city = $4, state = $5,
	                       address = $6, district = $7, zip_code = $8, freight = $9, active = COALESCE($10, active)
	                       WHERE id = $11`,
		strings.TrimSpace(req.TradeName), req.Email, req.Phone, req.City, req.State, req.Address, req.District, req.ZipCode, req.Freight, req.Active, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update supplier")
		return
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		respondError(w, http.StatusNotFound, "supplier not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid supplier id")
		return
	}
	res, err := h.db.Exec(`DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		if strings.Contains(err.Error(), "foreign key") {
			respondError(w, http.StatusConflict, "supplier still has products")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to delete supplier")
		return
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		respondError(w, http.StatusNotFound, "supplier not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Product handlers

type productRequest struct {
	Name       string   `json:"name"`
	CostPrice  *float64 `json:"cost_price"`
	SalePrice  float64  `json:"sale_price"`
	Quantity   float64  `json:"quantity"`
	Unit       string   `json:"unit"`
	ExpiryDate string   `json:"expiry_date"`
	Barcode    *int64   `json:"barcode"`
	SupplierID *int64   `json:"supplier_id"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.SalePrice <= 0 {
		respondError(w, http.StatusBadRequest, "sale_price must be greater than zero")
		return
	}
	if req.Quantity < 0 {
		respondError(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}
	expiry, ok := parseExpiry(w, req.ExpiryDate)
	if !ok {
		return
	}

	var id int64
	err := h.db.QueryRowx(`INSERT INTO products (name, cost_price, sale_price, quantity, unit, expiry_date, barcode, supplier_id)
	                       VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		strings.TrimSpace(req.Name), req.CostPrice, req.SalePrice, req.Quantity, req.Unit, expiry, req.Barcode, req.SupplierID).Scan(&id)
	if err != nil {
		if strings.Contains(err.Error(), "foreign key") {
			respondError(w, http.StatusBadRequest, "invalid supplier_id")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to create product")
		return
	}

	h.results.Clear()
	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "name": req.Name})
}

type productListRow struct {
	domain.Product
	SupplierName *string `db:"supplier_name" json:"supplier_name,omitempty"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 100)

	var total int
	if err := h.db.Get(&total, `SELECT COUNT(*) FROM products`); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to count products")
		return
	}

	var products []productListRow
	err := h.db.Select(&products, `SELECT p.id, p.name, p.cost_price, p.sale_price, p.quantity, p.unit, p.expiry_date,
	                                      p.barcode, p.supplier_id, p.created_at, p.updated_at, s.trade_name AS supplier_name
	                               FROM products p
	                               LEFT JOIN suppliers s ON s.id = p.supplier_id
	                               ORDER BY p.id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list products")
		return
	}
	if products == nil {
		products = []productListRow{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": products, "total": total})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var product domain.Product
	if err := h.db.Get(&product, `SELECT id, name, cost_price, sale_price, quantity, unit, expiry_date, barcode, supplier_id, created_at, updated_at FROM products WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "product not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load product")
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.SalePrice <= 0 {
		respondError(w, http.StatusBadRequest, "sale_price must be greater than zero")
		return
	}
	if req.Quantity < 0 {
		respondError(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}
	expiry, ok := parseExpiry(w, req.ExpiryDate)
	if !ok {
		return
	}

	res, err := h.db.Exec(`UPDATE products SET name = $1, cost_price = $2, sale_price = $3, quantity = $4, unit = $5,
	                       expiry_date = $6, barcode = $7, supplier_id = $8, updated_at = CURRENT_TIMESTAMP
	                       WHERE id = $9`,
		strings.TrimSpace(req.Name), req.CostPrice, req.SalePrice, req.Quantity, req.Unit, expiry, req.Barcode, req.SupplierID, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update product")
		return
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}

	h.results.Clear()
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	res, err := h.db.Exec(`DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if strings.Contains(err.Error(), "foreign key") {
			respondError(w, http.StatusConflict, "product has recorded sales")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to delete product")
		return
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}

	h.results.Clear()
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type availableProduct struct {
	ID        int64   `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	SalePrice float64 `db:"sale_price" json:"sale_price"`
	Quantity  float64 `db:"quantity" json:"quantity"`
	Unit      string  `db:"unit" json:"unit"`
	Barcode   *int64  `db:"barcode" json:"barcode,omitempty"`
}

// availableProducts feeds the POS screen: only in-stock products,
// alphabetical, capped.
func (h *Handler) availableProducts(w http.ResponseWriter, r *http.Request) {
	var products []availableProduct
	err := h.db.Select(&products, `SELECT id, name, sale_price, quantity, unit, barcode FROM products WHERE quantity > 0 ORDER BY name ASC LIMIT 500`)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list available products")
		return
	}
	if products == nil {
		products = []availableProduct{}
	}
	respondJSON(w, http.StatusOK, products)
}

// Sales handlers

type saleRequest struct {
	Items         []domain.CartItem `json:"items"`
	PaymentMethod string            `json:"payment_method"`
}

func validPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "pix":
		return true
	}
	return false
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validPaymentMethod(req.PaymentMethod) {
		respondError(w, http.StatusBadRequest, "payment_method must be cash, card or pix")
		return
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			respondError(w, http.StatusBadRequest, "item quantity must be greater than zero")
			return
		}
	}

	saleID, total, err := h.sales.Record(req.Items, req.PaymentMethod, userIDFromContext(r))
	if err != nil {
		var stockErr *sales.InsufficientStockError
		var missingErr *sales.ProductNotFoundError
		switch {
		case errors.Is(err, sales.ErrEmptyCart), errors.Is(err, sales.ErrMissingUser):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &missingErr):
			respondError(w, http.StatusNotFound, missingErr.Error())
		case errors.As(err, &stockErr):
			respondError(w, http.StatusConflict, stockErr.Error())
		default:
			respondError(w, http.StatusInternalServerError, "unable to record sale")
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"sale_id": saleID, "total": total})
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 100)
	rows, total, err := h.sales.List(limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list sales")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": rows, "total": total})
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sale id")
		return
	}
	detail, err := h.sales.Get(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "sale not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load sale")
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// User handlers

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "admin") {
		return
	}
	var users []domain.User
	if err := h.db.Select(&users, `SELECT id, name, email, role, created_at FROM users ORDER BY name`); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list users")
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	respondJSON(w, http.StatusOK, users)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	uid := userIDFromContext(r)
	var user domain.User
	if err := h.db.Get(&user, `SELECT id, name, email, role, created_at FROM users WHERE id = $1`, uid); err != nil {
		respondError(w, http.StatusNotFound, "profile not found")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Dashboard

type dashboardResponse struct {
	Revenue        dashboard.RevenueSummary    `json:"revenue"`
	Sales          dashboard.SalesCountSummary `json:"sales"`
	BestSeller     *dashboard.ProductSales     `json:"best_seller"`
	TopProducts    []dashboard.ProductSales    `json:"top_products"`
	LowStock       []dashboard.LowStockProduct `json:"low_stock"`
	Expiring       []dashboard.ExpiringProduct `json:"expiring"`
	InventoryValue float64                     `json:"inventory_value"`
	AverageTicket  dashboard.TicketSummary     `json:"average_ticket"`
	LastDays       []dashboard.DailyRevenue    `json:"last_days"`
}

// dashboardSummary composes every widget. A widget whose query fails
// degrades to its zero value so the page still renders; the error only
// goes to the log.
func (h *Handler) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = expiryWindowDays
	}

	resp := dashboardResponse{
		TopProducts: []dashboard.ProductSales{},
		LowStock:    []dashboard.LowStockProduct{},
		Expiring:    []dashboard.ExpiringProduct{},
		LastDays:    []dashboard.DailyRevenue{},
	}

	if v, err := h.metrics.Revenue(); err != nil {
		log.Printf("dashboard: revenue: %v", err)
	} else {
		resp.Revenue = v
	}
	if v, err := h.metrics.SalesCounts(); err != nil {
		log.Printf("dashboard: sales counts: %v", err)
	} else {
		resp.Sales = v
	}
	if v, err := h.metrics.BestSeller(); err != nil {
		log.Printf("dashboard: best seller: %v", err)
	} else {
		resp.BestSeller = v
	}
	if v, err := h.metrics.TopProducts(topProductCount); err != nil {
		log.Printf("dashboard: top products: %v", err)
	} else {
		resp.TopProducts = v
	}
	if v, err := h.metrics.LowStock(lowStockThreshold, lowStockMax); err != nil {
		log.Printf("dashboard: low stock: %v", err)
	} else {
		resp.LowStock = v
	}
	if v, err := h.metrics.Expiring(days); err != nil {
		log.Printf("dashboard: expiring: %v", err)
	} else {
		resp.Expiring = v
	}
	if v, err := h.metrics.InventoryValue(); err != nil {
		log.Printf("dashboard: inventory value: %v", err)
	} else {
		resp.InventoryValue = v
	}
	if v, err := h.metrics.AverageTicket(); err != nil {
		log.Printf("dashboard: average ticket: %v", err)
	} else {
		resp.AverageTicket = v
	}
	if v, err := h.metrics.SalesLastNDays(chartDays); err != nil {
		log.Printf("dashboard: last days: %v", err)
	} else {
		resp.LastDays = v
	}

	respondJSON(w, http.StatusOK, resp)
}

// Helpers

func parseExpiry(w http.ResponseWriter, val string) (*time.Time, bool) {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return nil, true
	}
	parsed, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		respondError(w, http.StatusBadRequest, "expiry_date must be in YYYY-MM-DD format")
		return nil, false
	}
	return &parsed, true
}

func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = defaultLimit
	}
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
