package wikibase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
)

// EntityType is the kind of entity created through the write API.
type EntityType int

const (
	ItemEntity EntityType = iota
	PropertyEntity
)

func (t EntityType) String() string {
	if t == PropertyEntity {
		return "property"
	}
	return "item"
}

// DataType is the value type of a property.
type DataType string

const (
	DataTypeString     DataType = "string"
	DataTypeItem       DataType = "wikibase-item"
	DataTypeURL        DataType = "url"
	DataTypeCoordinate DataType = "globe-coordinate"
)

// EntitySpec describes an entity to create, or the data written by Edit.
type EntitySpec struct {
	Type        EntityType
	DataType    DataType // properties only
	Label       string
	Description string
	Claims      []Claim
}

// Editor writes entities and claims.
type Editor interface {
	Create(ctx context.Context, spec EntitySpec) (string, error)
	AttachClaims(ctx context.Context, id string, claims []Claim, replace bool) error
	Edit(ctx context.Context, id string, spec EntitySpec, replace bool) error
}

// Credentials of a bot account. Anonymous edits are used when empty.
type Credentials struct {
	User     string
	Password string
}

// SearchResult is one match of a label search.
type SearchResult struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

const (
	propertyLabelConflict = "wikibase-validator-label-conflict"
	itemLabelConflict     = "wikibase-validator-label-with-description-conflict"
)

// conflict messages carry the owner of the label as "[[Property:P1|P1]]"
var conflictIDRegex = regexp.MustCompile(`\[\[[^\]|]*\|([^\]|]+)\]\]`)

// APIClient talks to the MediaWiki action API of a Wikibase instance.
type APIClient struct {
	endpoint string
	token    string
	t        *transport
}

// NewAPIClient logs in when creds are set and fetches the CSRF token used for
// every edit.
func NewAPIClient(ctx context.Context, endpoint string, creds Credentials, opts Options) (*APIClient, error) {
	hc := &http.Client{Timeout: defaultTimeout}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		hc = &copied
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}
	opts.HTTPClient = hc

	c := &APIClient{endpoint: endpoint, t: newTransport("api", opts)}
	if creds.User != "" {
		if err := c.login(ctx, creds); err != nil {
			return nil, err
		}
	}
	token, err := c.fetchToken(ctx, "csrf")
	if err != nil {
		return nil, err
	}
	c.token = token
	return c, nil
}

type tokenResponse struct {
	Query struct {
		Tokens struct {
			CSRFToken  string `json:"csrftoken"`
			LoginToken string `json:"logintoken"`
		} `json:"tokens"`
	} `json:"query"`
}

func (c *APIClient) fetchToken(ctx context.Context, kind string) (string, error) {
	var res tokenResponse
	if err := c.get(ctx, "tokens", url.Values{"action": {"query"}, "meta": {"tokens"}, "type": {kind}}, &res); err != nil {
		return "", err
	}
	token := res.Query.Tokens.CSRFToken
	if kind == "login" {
		token = res.Query.Tokens.LoginToken
	}
	if token == "" {
		return "", &MalformedResponseError{Service: "api", Op: "tokens", Err: fmt.Errorf("no %s token", kind)}
	}
	return token, nil
}

func (c *APIClient) login(ctx context.Context, creds Credentials) error {
	token, err := c.fetchToken(ctx, "login")
	if err != nil {
		return err
	}
	var res struct {
		Login struct {
			Result string `json:"result"`
			Reason string `json:"reason"`
		} `json:"login"`
	}
	form := url.Values{"lgname": {creds.User}, "lgpassword": {creds.Password}, "lgtoken": {token}}
	if err := c.post(ctx, "login", url.Values{"action": {"login"}}, form, &res); err != nil {
		return err
	}
	if res.Login.Result != "Success" {
		return &WriteError{Op: "login", Code: res.Login.Result, Info: res.Login.Reason}
	}
	c.t.logger.Info("logged in to wikibase", "user", creds.User)
	return nil
}

type editResponse struct {
	Entity *struct {
		ID string `json:"id"`
	} `json:"entity"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code     string       `json:"code"`
	Info     string       `json:"info"`
	Messages []apiMessage `json:"messages"`
}

type apiMessage struct {
	Name       string `json:"name"`
	Parameters []any  `json:"parameters"`
}

type editData struct {
	Labels       map[string]langValue `json:"labels,omitempty"`
	Descriptions map[string]langValue `json:"descriptions,omitempty"`
	DataType     DataType             `json:"datatype,omitempty"`
	Claims       []statement          `json:"claims"`
}

type langValue struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

func newEditData(spec EntitySpec) editData {
	d := editData{Claims: encodeClaims(spec.Claims)}
	if spec.Label != "" {
		d.Labels = map[string]langValue{"en": {Language: "en", Value: spec.Label}}
	}
	if spec.Description != "" {
		d.Descriptions = map[string]langValue{"en": {Language: "en", Value: spec.Description}}
	}
	if spec.Type == PropertyEntity {
		d.DataType = spec.DataType
		if d.DataType == "" {
			d.DataType = DataTypeString
		}
	}
	return d
}

// Create creates a new entity and returns its identifier. A label already used
// by another entity yields a *LabelConflictError.
func (c *APIClient) Create(ctx context.Context, spec EntitySpec) (string, error) {
	data, err := json.Marshal(newEditData(spec))
	if err != nil {
		return "", err
	}
	c.t.logger.Debug("creating entity", "type", spec.Type, "label", spec.Label, "data", string(data))

	var res editResponse
	params := url.Values{"action": {"wbeditentity"}, "new": {spec.Type.String()}}
	form := url.Values{"token": {c.token}, "data": {string(data)}}
	if err := c.post(ctx, "create", params, form, &res); err != nil {
		return "", err
	}
	if res.Error != nil {
		return "", conflictOrWriteError(spec.Label, res.Error)
	}
	if res.Entity == nil || res.Entity.ID == "" {
		return "", &MalformedResponseError{Service: "api", Op: "create", Err: errors.New("no entity id")}
	}
	return res.Entity.ID, nil
}

func conflictOrWriteError(label string, e *apiError) error {
	for _, m := range e.Messages {
		if m.Name != propertyLabelConflict && m.Name != itemLabelConflict {
			continue
		}
		if id := conflictingID(m); id != "" {
			return &LabelConflictError{Label: label, ExistingID: id}
		}
		return &WriteError{Op: "create", Code: e.Code, Info: "conflict while inserting: " + e.Info}
	}
	return &WriteError{Op: "create", Code: e.Code, Info: e.Info}
}

// conflictingID extracts the identifier from the last parameter of a conflict
// message, or returns "" when it cannot be found.
func conflictingID(m apiMessage) string {
	if len(m.Parameters) == 0 {
		return ""
	}
	last, ok := m.Parameters[len(m.Parameters)-1].(string)
	if !ok {
		return ""
	}
	match := conflictIDRegex.FindStringSubmatch(last)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// AttachClaims adds claims to an entity. With replace, every existing claim
// is removed first.
func (c *APIClient) AttachClaims(ctx context.Context, id string, claims []Claim, replace bool) error {
	if !replace && len(encodeClaims(claims)) == 0 {
		return nil
	}
	return c.Edit(ctx, id, EntitySpec{Claims: claims}, replace)
}

// Edit writes spec onto an existing entity. With replace the entity is
// cleared first, so labels must be part of spec to survive.
func (c *APIClient) Edit(ctx context.Context, id string, spec EntitySpec, replace bool) error {
	data, err := json.Marshal(newEditData(spec))
	if err != nil {
		return err
	}
	params := url.Values{"action": {"wbeditentity"}, "id": {id}}
	if replace {
		params.Set("clear", "true")
	}
	var res editResponse
	form := url.Values{"token": {c.token}, "data": {string(data)}}
	if err := c.post(ctx, "edit", params, form, &res); err != nil {
		return err
	}
	if res.Error != nil {
		return &WriteError{Op: "edit", Code: res.Error.Code, Info: res.Error.Info}
	}
	return nil
}

// SearchEntities looks entities up by English label. Matches are not
// necessarily exact.
func (c *APIClient) SearchEntities(ctx context.Context, label string, typ EntityType) ([]SearchResult, error) {
	var res struct {
		Search []SearchResult `json:"search"`
		Error  *apiError      `json:"error"`
	}
	params := url.Values{
		"action":   {"wbsearchentities"},
		"language": {"en"},
		"search":   {label},
		"type":     {typ.String()},
		"limit":    {"50"},
	}
	if err := c.get(ctx, "search", params, &res); err != nil {
		return nil, err
	}
	if res.Error != nil {
		return nil, &WriteError{Op: "search", Code: res.Error.Code, Info: res.Error.Info}
	}
	return res.Search, nil
}

type entityDoc struct {
	Missing *string              `json:"missing"`
	Labels  map[string]langValue `json:"labels"`
	Claims  map[string][]struct {
		Mainsnak struct {
			DataValue *struct {
				Type  string          `json:"type"`
				Value json.RawMessage `json:"value"`
			} `json:"datavalue"`
		} `json:"mainsnak"`
	} `json:"claims"`
}

// getEntity fetches props ("labels", "claims") of one entity.
func (c *APIClient) getEntity(ctx context.Context, id, props string) (*entityDoc, error) {
	var res struct {
		Entities map[string]entityDoc `json:"entities"`
		Error    *apiError            `json:"error"`
	}
	params := url.Values{"action": {"wbgetentities"}, "ids": {id}, "props": {props}, "languages": {"en"}}
	if err := c.get(ctx, "get", params, &res); err != nil {
		return nil, err
	}
	if res.Error != nil {
		if res.Error.Code == "no-such-entity" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, &WriteError{Op: "get", Code: res.Error.Code, Info: res.Error.Info}
	}
	e, ok := res.Entities[id]
	if !ok {
		return nil, &MalformedResponseError{Service: "api", Op: "get", Err: fmt.Errorf("no entity %s in response", id)}
	}
	if e.Missing != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &e, nil
}

// Label returns the English label of an entity.
func (c *APIClient) Label(ctx context.Context, id string) (string, error) {
	e, err := c.getEntity(ctx, id, "labels")
	if err != nil {
		return "", err
	}
	label, ok := e.Labels["en"]
	if !ok {
		return "", fmt.Errorf("entity %s has no english label", id)
	}
	return label.Value, nil
}

// ItemClaims returns the items an entity points to through property, read
// from the entity itself rather than the query service.
func (c *APIClient) ItemClaims(ctx context.Context, id, property string) ([]string, error) {
	e, err := c.getEntity(ctx, id, "claims")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, st := range e.Claims[property] {
		dv := st.Mainsnak.DataValue
		if dv == nil || dv.Type != "wikibase-entityid" {
			continue
		}
		var v struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(dv.Value, &v); err != nil || v.ID == "" {
			return nil, &MalformedResponseError{Service: "api", Op: "get", Err: fmt.Errorf("claim %s of %s: bad item value", property, id)}
		}
		out = append(out, v.ID)
	}
	return out, nil
}

func (c *APIClient) get(ctx context.Context, op string, params url.Values, out any) error {
	params.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	return c.send(op, req, out)
}

func (c *APIClient) post(ctx context.Context, op string, params, form url.Values, out any) error {
	params.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?"+params.Encode(), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(op, req, out)
}

func (c *APIClient) send(op string, req *http.Request, out any) error {
	status, body, err := c.t.do(op, req)
	if err != nil {
		return err
	}
	if !success(status) {
		return &WriteError{Op: op, Status: status, Info: snippet(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &MalformedResponseError{Service: "api", Op: op, Err: err}
	}
	return nil
}
