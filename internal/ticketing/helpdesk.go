package ticketing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// helpdeskCallRate throttles outbound helpdesk calls independently of the
// circuit breaker, so a recovering backend isn't immediately hammered by
// every queued fallback entry at once.
const helpdeskCallRate = 5 // requests/second

// HelpdeskClient is a lightweight REST client for the external helpdesk.
// Grounded on vanducng-goclaw's feishu.LarkClient doJSON idiom (token-bearing
// net/http client with a single token-error retry), adapted from tenant-token
// auth to OAuth2 bearer auth via TokenManager.
type HelpdeskClient struct {
	baseURL      string
	departmentID string
	orgID        string

	httpClient *http.Client
	tokens     *TokenManager
	limiter    *rate.Limiter
}

func NewHelpdeskClient(baseURL, departmentID, orgID string, tokens *TokenManager, callTimeout time.Duration) *HelpdeskClient {
	return &HelpdeskClient{
		baseURL:      baseURL,
		departmentID: departmentID,
		orgID:        orgID,
		httpClient:   &http.Client{Timeout: callTimeout},
		tokens:       tokens,
		limiter:      rate.NewLimiter(rate.Limit(helpdeskCallRate), helpdeskCallRate),
	}
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("helpdesk api: status=%d body=%s", e.status, e.body)
}

// doJSON performs an authenticated JSON call, retrying once on a 401 after
// forcing a token refresh (spec §4.3).
func (c *HelpdeskClient) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("helpdesk: rate limiter: %w", err)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	status, err := c.doJSONOnce(ctx, method, path, token, body, out)
	if err == nil {
		return nil
	}
	if status != http.StatusUnauthorized {
		return err
	}

	token, refreshErr := c.tokens.ForceRefresh(ctx)
	if refreshErr != nil {
		return model.NewClassifiedError(model.KindAuthExpired, fmt.Errorf("helpdesk: refresh after 401: %w", refreshErr))
	}
	_, err = c.doJSONOnce(ctx, method, path, token, body, out)
	return err
}

func (c *HelpdeskClient) doJSONOnce(ctx context.Context, method, path, token string, body, out interface{}) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("helpdesk: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("helpdesk: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, model.NewClassifiedError(model.KindTransient, fmt.Errorf("helpdesk: %s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		return resp.StatusCode, &apiError{status: resp.StatusCode, body: buf.String()}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("helpdesk: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ResolveContact implements spec §4.3's reporter resolution: email preferred,
// else the phone-derived synthetic email, search-or-create.
func (c *HelpdeskClient) ResolveContact(ctx context.Context, name, email, phone string) (string, error) {
	if email == "" {
		email = model.SyntheticEmail(phone)
	}

	var found struct {
		Contacts []contact `json:"contacts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v2/contacts/search?email="+email, nil, &found); err != nil {
		return "", fmt.Errorf("helpdesk: search contact: %w", err)
	}
	if len(found.Contacts) > 0 {
		return found.Contacts[0].ID, nil
	}

	var created contact
	req := contact{Name: name, Email: email}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v2/contacts", req, &created); err != nil {
		return "", fmt.Errorf("helpdesk: create contact: %w", err)
	}
	return created.ID, nil
}

type createTicketRequest struct {
	Subject      string `json:"subject"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	Urgency      string `json:"urgency"`
	DepartmentID string `json:"department_id"`
	ContactID    string `json:"contact_id"`
}

type ticketResponse struct {
	ID string `json:"id"`
}

// CreateTicket resolves the reporter contact and creates the ticket (spec
// §4.3 steps 1-4).
func (c *HelpdeskClient) CreateTicket(ctx context.Context, spec model.TicketSpec) (string, error) {
	contactID, err := c.ResolveContact(ctx, spec.ReporterName, spec.ReporterEmail, spec.ReporterPhone)
	if err != nil {
		return "", err
	}

	var resp ticketResponse
	req := createTicketRequest{
		Subject:      spec.Subject,
		Description:  spec.Description,
		Category:     spec.Category,
		Urgency:      string(spec.Urgency),
		DepartmentID: c.departmentID,
		ContactID:    contactID,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v2/tickets", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UpdateTicket appends a note to an existing ticket's thread.
func (c *HelpdeskClient) UpdateTicket(ctx context.Context, update model.TicketUpdate) error {
	path := "/api/v2/tickets/" + update.TicketID + "/notes"
	req := map[string]string{"body": update.AddNote, "author": update.Author}
	return c.doJSON(ctx, http.MethodPost, path, req, nil)
}
