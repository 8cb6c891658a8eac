package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"travo/entities"
	"travo/pkg/identity"
	"travo/pkg/normalize"
)

var logger = log.New("backend")

func SetLogLevel(l log.Lvl) { logger.SetLevel(l) }

type Config struct {
	BaseURL      string
	Timeout      time.Duration
	ReadRetries  int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
}

type httpClient struct {
	base    string
	timeout time.Duration
	retries int
	backoff time.Duration
	httpc   *http.Client
	tokens  TokenSource
}

func NewHTTP(cfg Config, tokens TokenSource) Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ReadRetries < 0 {
		cfg.ReadRetries = 0
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{}
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &httpClient{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		retries: cfg.ReadRetries,
		backoff: cfg.RetryBackoff,
		httpc:   httpc,
		tokens:  tokens,
	}
}

// do performs one request with the per-request timeout. Non-2xx statuses
// come back as *StatusError along with the body.
func (c *httpClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.tokens.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, nil, fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
		}
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return resp.StatusCode, nil, fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
		}
		return resp.StatusCode, nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, data, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Message: message(data)}
	}
	return resp.StatusCode, data, nil
}

// get retries idempotent reads with linearly growing backoff. Client
// errors other than 408/429 are not retried.
func (c *httpClient) get(ctx context.Context, path string) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(attempt)
			logger.Debugf("[backend] retry %d/%d GET %s in %s: %v", attempt, c.retries, path, wait, lastErr)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		_, data, err := c.do(ctx, http.MethodGet, path, nil)
		if err == nil {
			return decode(data)
		}
		lastErr = err
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// send is for mutating requests; they are never retried.
func (c *httpClient) send(ctx context.Context, method, path string, body any) (any, error) {
	_, data, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func decode(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return out, nil
}

var messageField = normalize.Field{Name: "message", Keys: []string{"message", "error", "detail"}, Kind: normalize.KindString}

func message(data []byte) string {
	v, err := decode(data)
	if err != nil {
		return ""
	}
	obj, _ := normalize.AsObject(v)
	return normalize.String(obj, messageField, "")
}

var successField = normalize.Field{Name: "success", Keys: []string{"success", "ok"}, Kind: normalize.KindBool}

// failed reports an explicit {"success": false} inside a 2xx answer.
func failed(obj map[string]any) bool {
	return obj != nil && !normalize.Bool(obj, successField, true)
}

func planList(v any) []any {
	if l, ok := normalize.AsList(v); ok {
		return l
	}
	obj, _ := normalize.AsObject(v)
	l, _ := normalize.List(obj, normalize.PlanList)
	return l
}

func (c *httpClient) ListPlans(ctx context.Context) ([]any, error) {
	v, err := c.get(ctx, "/travel-plans?include_activities=true")
	if err != nil {
		return nil, err
	}
	return planList(v), nil
}

func (c *httpClient) PublicPlans(ctx context.Context, q PublicQuery) ([]any, error) {
	vals := url.Values{}
	if q.Page > 0 {
		vals.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		vals.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.SortBy != "" {
		vals.Set("sortBy", q.SortBy)
	}
	if q.SortOrder != "" {
		vals.Set("sortOrder", q.SortOrder)
	}
	vals.Set("include_photos", "true")
	if q.IncludeActivities {
		vals.Set("include_activities", "true")
		vals.Set("include_days", "true")
		vals.Set("include_full_details", "true")
	}
	v, err := c.get(ctx, "/travel-plans/public?"+vals.Encode())
	if err != nil {
		return nil, err
	}
	return planList(v), nil
}

// FetchPlan tries the owner route first, then the public ones. A 401 on
// any route is reported only if no route produced the plan.
func (c *httpClient) FetchPlan(ctx context.Context, id string) (map[string]any, error) {
	esc := url.PathEscape(id)
	paths := []string{"/travel-plans/" + esc, "/travel-plans/public/" + esc, "/plans/public/" + esc}
	unauthorized := false
	for _, p := range paths {
		v, err := c.get(ctx, p)
		switch {
		case err == nil:
			obj, _ := normalize.AsObject(v)
			if obj == nil || failed(obj) {
				logger.Debugf("[backend] %s: empty or unsuccessful body", p)
				continue
			}
			return normalize.Envelope(obj), nil
		case errors.Is(err, ErrUnauthorized):
			unauthorized = true
		case errors.Is(err, ErrNotFound):
		default:
			var se *StatusError
			if !errors.As(err, &se) || se.Status != http.StatusForbidden {
				return nil, err
			}
		}
	}
	if unauthorized {
		return nil, fmt.Errorf("fetch plan %s: %w", id, ErrUnauthorized)
	}
	return nil, fmt.Errorf("fetch plan %s: %w", id, ErrNotFound)
}

func (c *httpClient) GeneratePlan(ctx context.Context, req GenerateRequest) (map[string]any, error) {
	v, err := c.send(ctx, http.MethodPost, "/travel-plans/generate", req)
	if err != nil {
		return nil, err
	}
	obj, _ := normalize.AsObject(v)
	if obj == nil || failed(obj) {
		return nil, fmt.Errorf("generate plan: %w", ErrBadResponse)
	}
	return normalize.Envelope(obj), nil
}

func (c *httpClient) UpdatePlan(ctx context.Context, id string, fields map[string]any) (map[string]any, error) {
	v, err := c.send(ctx, http.MethodPut, "/travel-plans/"+url.PathEscape(id), fields)
	if err != nil {
		return nil, err
	}
	return normalize.Envelope(v), nil
}

func (c *httpClient) SetPrivacy(ctx context.Context, id string, public bool) error {
	_, err := c.send(ctx, http.MethodPut, "/travel-plans/"+url.PathEscape(id), map[string]any{"is_public": public})
	return err
}

func (c *httpClient) DeletePlan(ctx context.Context, id string) error {
	_, err := c.send(ctx, http.MethodDelete, "/travel-plans/"+url.PathEscape(id), nil)
	return err
}

func (c *httpClient) AddActivity(ctx context.Context, planID string, day int, a entities.Activity) (map[string]any, error) {
	body := map[string]any{"day_index": day, "activity": activityBody(a)}
	v, err := c.send(ctx, http.MethodPost, "/travel-plans/"+url.PathEscape(planID)+"/activities", body)
	if err != nil {
		return nil, err
	}
	return activityEnvelope(v), nil
}

func (c *httpClient) UpdateActivity(ctx context.Context, planID string, day int, a entities.Activity) (map[string]any, error) {
	body := map[string]any{"activity": activityBody(a)}
	if day >= 0 {
		body["day_index"] = day
	}
	v, err := c.send(ctx, http.MethodPut, c.activityPath(planID, a.ID), body)
	if err != nil {
		return nil, err
	}
	return activityEnvelope(v), nil
}

// activityPath addresses an activity by its identifier, or by day/slot for
// positional identifiers.
func (c *httpClient) activityPath(planID, activityID string) string {
	pid := url.PathEscape(planID)
	if d, a, ok := identity.ParsePositional(activityID); ok {
		return fmt.Sprintf("/travel-plans/%s/days/%d/activities/%d", pid, d, a)
	}
	switch identity.Classify(activityID) {
	case identity.KindUUID, identity.KindObjectID:
	default:
		logger.Warnf("[backend] activity id %q is not server-shaped; sending as is", activityID)
	}
	return "/travel-plans/" + pid + "/activities/" + url.PathEscape(activityID)
}

func activityBody(a entities.Activity) map[string]any {
	out := map[string]any{
		"name":             a.Name,
		"location":         a.Location,
		"type":             string(a.Category),
		"time":             a.Time,
		"duration_minutes": a.DurationMinutes,
		"address":          a.Address,
		"description":      a.Description,
		"photos":           a.Photos,
	}
	if a.HasCoordinates() {
		out["lat"], out["lng"] = a.Lat, a.Lng
	}
	if a.PlaceID != "" {
		out["place_id"] = a.PlaceID
	}
	if a.Rating != nil {
		out["rating"] = *a.Rating
	}
	return out
}

func activityEnvelope(v any) map[string]any {
	return normalize.Envelope(v, "activity", "data")
}

var (
	errorCodeField    = normalize.Field{Name: "error_code", Keys: []string{"error_code", "code"}, Kind: normalize.KindString}
	verificationField = normalize.Field{Name: "db_verification", Keys: []string{"db_verification", "verified"}, Kind: normalize.KindBool}
)

// DeleteActivity issues exactly one request and classifies the answer.
func (c *httpClient) DeleteActivity(ctx context.Context, planID string, ref ActivityRef) DeleteResult {
	path := c.activityPath(planID, ref.ID)
	if _, _, ok := identity.ParsePositional(ref.ID); ok && ref.Day >= 0 && ref.Slot >= 0 {
		path = fmt.Sprintf("/travel-plans/%s/days/%d/activities/%d", url.PathEscape(planID), ref.Day, ref.Slot)
	}
	status, data, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		var se *StatusError
		if !errors.As(err, &se) {
			return DeleteResult{Outcome: DeleteTransportFailure, Err: err}
		}
		res := DeleteResult{Status: se.Status, Message: se.Message, Err: err}
		switch {
		case se.Status == http.StatusNotFound:
			res.Outcome = DeleteNotFound
		case se.Status == http.StatusUnauthorized:
			res.Outcome = DeleteUnauthorized
		default:
			res.Outcome = DeleteRejected
		}
		return res
	}
	if status == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return DeleteResult{Outcome: DeleteConfirmed, Status: status}
	}
	v, err := decode(data)
	obj, ok := normalize.AsObject(v)
	if err != nil || !ok {
		if err == nil {
			err = ErrBadResponse
		}
		return DeleteResult{Outcome: DeleteTransportFailure, Status: status, Err: err}
	}
	msg := normalize.String(obj, messageField, "")
	if normalize.String(obj, errorCodeField, "") == "permission_denied" || failed(obj) {
		return DeleteResult{Outcome: DeleteRejected, Status: status, Message: msg}
	}
	if !normalize.Bool(obj, verificationField, true) {
		return DeleteResult{Outcome: DeleteUnverified, Status: status, Message: msg}
	}
	return DeleteResult{Outcome: DeleteConfirmed, Status: status, Message: msg}
}

var (
	tokenField  = normalize.Field{Name: "token", Keys: []string{"token", "access_token"}, Kind: normalize.KindString}
	userIDField = normalize.Field{Name: "user_id", Keys: []string{"user_id", "userId", "id", "_id"}, Kind: normalize.KindString}
	userField   = normalize.Field{Name: "user", Keys: []string{"user", "data"}, Kind: normalize.KindObject}
	nameField   = normalize.Field{Name: "name", Keys: []string{"display_name", "name", "username"}, Kind: normalize.KindString}
	emailField  = normalize.Field{Name: "email", Keys: []string{"email"}, Kind: normalize.KindString}
)

func account(v any) Account {
	obj, _ := normalize.AsObject(v)
	acc := Account{
		Token:  normalize.String(obj, tokenField, ""),
		UserID: normalize.String(obj, userIDField, ""),
	}
	user, ok := normalize.Object(obj, userField)
	if !ok {
		user = obj
	}
	if acc.UserID == "" {
		acc.UserID = normalize.String(user, userIDField, "")
	}
	acc.Email = normalize.String(user, emailField, "")
	acc.Name = normalize.String(user, nameField, "")
	if prof, ok := user["profile"].(map[string]any); ok {
		acc.Name = normalize.String(prof, nameField, acc.Name)
	}
	return acc
}

func (c *httpClient) Login(ctx context.Context, email, password string) (Account, error) {
	v, err := c.send(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return Account{}, err
	}
	obj, _ := normalize.AsObject(v)
	acc := account(obj)
	if failed(obj) || acc.Token == "" {
		return Account{}, fmt.Errorf("login: %w", ErrUnauthorized)
	}
	if acc.Email == "" {
		acc.Email = email
	}
	return acc, nil
}

func (c *httpClient) Register(ctx context.Context, req RegisterRequest) (Account, error) {
	v, err := c.send(ctx, http.MethodPost, "/auth/register", req)
	if err != nil {
		return Account{}, err
	}
	obj, _ := normalize.AsObject(v)
	if failed(obj) {
		return Account{}, &StatusError{Method: http.MethodPost, Path: "/auth/register", Status: http.StatusBadRequest,
			Message: normalize.String(obj, messageField, "registration refused")}
	}
	acc := account(obj)
	if acc.Email == "" {
		acc.Email = req.Email
	}
	if acc.Name == "" {
		acc.Name = req.Name
	}
	return acc, nil
}

func (c *httpClient) Profile(ctx context.Context) (Account, error) {
	v, err := c.get(ctx, "/auth/profile")
	if err != nil {
		return Account{}, err
	}
	obj, _ := normalize.AsObject(v)
	if failed(obj) {
		return Account{}, fmt.Errorf("profile: %w", ErrUnauthorized)
	}
	return account(obj), nil
}

// Diagnose probes the health, auth and plan-list endpoints once each,
// without retries.
func (c *httpClient) Diagnose(ctx context.Context) []Check {
	probes := []struct{ name, path string }{
		{"health", "/health-check"},
		{"auth", "/auth/verify"},
		{"plans", "/travel-plans"},
	}
	out := make([]Check, 0, len(probes))
	for _, p := range probes {
		start := time.Now()
		status, _, err := c.do(ctx, http.MethodGet, p.path, nil)
		ch := Check{Name: p.name, OK: err == nil, Status: status, LatencyMS: time.Since(start).Milliseconds()}
		if err != nil {
			ch.Err = err.Error()
		}
		out = append(out, ch)
	}
	return out
}
