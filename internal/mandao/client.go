// Package mandao talks to the Mandao delivery platform: status updates go
// out through the outbox, accounts and catalogs come in on login.
package mandao

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"restopos/internal/config"
	"restopos/internal/logger"
	"restopos/internal/models"
	"restopos/internal/outbox"

	"github.com/shopspring/decimal"
)

// ErrInvalidCredentials is returned when Mandao rejects a login.
var ErrInvalidCredentials = errors.New("credenciales de Mandao inválidas")

// ErrUnavailable wraps transport and server failures.
var ErrUnavailable = errors.New("Mandao no disponible")

type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(cfg config.MandaoConfig, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		secret:  cfg.WebhookSecret,
		http:    &http.Client{Timeout: timeout},
		log:     log.WithComponent("mandao"),
	}
}

type statusUpdate struct {
	MandaoOrderID string `json:"mandaoOrderId"`
	Status        string `json:"status"`
	Secret        string `json:"secret"`
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (c *Client) post(ctx context.Context, path string, body any, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("decode mandao response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// PushStatus tells Mandao that one of its orders changed status here.
func (c *Client) PushStatus(ctx context.Context, externalOrderID string, status models.OrderStatus) error {
	if externalOrderID == "" {
		return nil
	}
	var out apiResponse
	code, err := c.post(ctx, "/jcrt/status-update", statusUpdate{
		MandaoOrderID: externalOrderID,
		Status:        string(status),
		Secret:        c.secret,
	}, &out)
	if err != nil {
		return err
	}
	if code >= 300 || !out.Success {
		return fmt.Errorf("mandao status update for %s: http %d: %s", externalOrderID, code, out.Message)
	}
	c.log.Info("status pushed to mandao", "mandao_order_id", externalOrderID, "estado", status)
	return nil
}

// HandleStatus is the outbox handler for Mandao status tasks.
func (c *Client) HandleStatus(ctx context.Context, p outbox.MandaoStatusPayload) error {
	return c.PushStatus(ctx, p.ExternalOrderID, p.Status)
}

// Product and Ingredient are catalog entries as Mandao sends them.
type Product struct {
	ID          string  `json:"_id"`
	Name        string  `json:"nombre"`
	Price       decimal.Decimal `json:"precio"`
	Category    string  `json:"categoria"`
	Description string  `json:"descripcion"`
}

type RecipeLink struct {
	ProductID        string  `json:"productoId"`
	QuantityRequired decimal.Decimal `json:"cantidadRequerida"`
}

type Ingredient struct {
	Name     string       `json:"nombre"`
	Stock    decimal.Decimal `json:"stock"`
	Cost     decimal.Decimal `json:"costo"`
	Value    decimal.Decimal `json:"valor"`
	Products []RecipeLink `json:"productos"`
}

// Account is the Mandao user returned on login, with its catalog.
type Account struct {
	ID          string       `json:"_id"`
	Name        string       `json:"nombre"`
	LastName    string       `json:"apellido"`
	Email       string       `json:"email"`
	Site        string       `json:"sede"`
	Menu        []Product    `json:"menu"`
	Ingredients []Ingredient `json:"alimentos"`
}

type loginResponse struct {
	Success bool     `json:"success"`
	Token   string   `json:"token"`
	Message string   `json:"message"`
	Usuario *Account `json:"usuario"`
	User    *Account `json:"user"`
}

// Login authenticates against Mandao and returns the account with its
// catalog.
func (c *Client) Login(ctx context.Context, email, password string) (*Account, error) {
	var out loginResponse
	code, err := c.post(ctx, "/auth/login", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return nil, err
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusBadRequest || code == http.StatusForbidden:
		return nil, ErrInvalidCredentials
	case code >= 500:
		return nil, fmt.Errorf("%w: http %d", ErrUnavailable, code)
	case !out.Success || out.Token == "":
		return nil, ErrInvalidCredentials
	}

	acct := out.Usuario
	if acct == nil {
		acct = out.User
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: respuesta sin usuario", ErrUnavailable)
	}
	if acct.Email == "" {
		acct.Email = email
	}
	return acct, nil
}
