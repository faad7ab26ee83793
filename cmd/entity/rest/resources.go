package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

func cacheKey(id string, crossBucket bool) string {
	return fmt.Sprintf("%t %s", crossBucket, id)
}

func (c *client) Retrieve(ctx context.Context, id string, crossBucket bool) (*forge.Resource, error) {
	key := cacheKey(id, crossBucket)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			if r, ok := v.(*forge.Resource); ok {
				c.logger.Debugf("cache hit: %s", id)
				return r.Clone(), nil
			}
		}
	}

	base, rev, qualified := forge.RevisionOf(id)
	root := "resources"
	if crossBucket {
		root = "resolvers"
	}
	u := c.apipath(root, c.org, c.project, "_", base)
	if qualified {
		u += "?rev=" + strconv.Itoa(rev)
	}

	resp, err := c.get(ctx, u, "application/ld+json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errorResponse(
			resp,
			MessageFor{Status4xx: "resource is not found: " + id},
			fmt.Errorf("%w: %s", forge.ErrNotFound, id),
		)
	}

	payload := jsonld.NewObject()
	if err := unmarshalJsonResponse(
		resp, payload,
		MessageFor{
			Status4xx: "cannot retrieve resource: " + id,
			Status5xx: "server error",
		},
	); err != nil {
		return nil, err
	}

	r := fromNexus(payload)
	if c.cache != nil {
		c.cache.SetDefault(key, r.Clone())
	}
	return r, nil
}

type listing struct {
	Total   int `json:"_total"`
	Results []struct {
		ID string `json:"@id"`
	} `json:"_results"`
}

// Search lists resources of the type in the filter, and picks ones
// which have all other field values.
func (c *client) Search(ctx context.Context, filter map[string]any, crossBucket bool) ([]*forge.Resource, error) {
	u := c.apipath("resources", c.org, c.project)
	if crossBucket {
		u = c.apipath("resources")
	}
	query := url.Values{}
	query.Set("deprecated", "false")
	query.Set("size", strconv.Itoa(pageSize))
	for _, t := range forge.StringOrList(filter["type"]) {
		query.Add("type", t)
	}

	ids := []string{}
	for from := 0; ; {
		query.Set("from", strconv.Itoa(from))
		resp, err := c.get(ctx, u+"?"+query.Encode(), "application/json")
		if err != nil {
			return nil, err
		}
		page := new(listing)
		err = unmarshalJsonResponse(
			resp, page,
			MessageFor{Status4xx: "cannot search resources", Status5xx: "server error"},
		)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			ids = append(ids, r.ID)
		}
		from += len(page.Results)
		if len(page.Results) == 0 || page.Total <= from {
			break
		}
	}

	ret := []*forge.Resource{}
	for _, id := range ids {
		r, err := c.Retrieve(ctx, id, crossBucket)
		if err != nil {
			return nil, err
		}
		if matches(r, filter) {
			ret = append(ret, r)
		}
	}
	return ret, nil
}

func matches(r *forge.Resource, filter map[string]any) bool {
	for k, want := range filter {
		if k == "type" {
			types := r.Types()
			for _, t := range forge.StringOrList(want) {
				if !slices.Contains(types, t) {
					return false
				}
			}
			continue
		}
		v, ok := r.Body.Get(k)
		if !ok || !jsonld.Equal(v, want) {
			return false
		}
	}
	return true
}

func (c *client) Register(ctx context.Context, r *forge.Resource, schemaID string) error {
	schema := "_"
	if schemaID != "" {
		schema = schemaID
	}

	method := http.MethodPost
	u := c.apipath("resources", c.org, c.project, schema)
	if id := r.ID(); id != "" {
		method = http.MethodPut
		u = c.apipath("resources", c.org, c.project, schema, id)
	}

	buf, err := json.Marshal(toNexus(r.Body, c.context))
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, method, u, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/ld+json")

	c.logger.Debugf("%s %s", method, u)
	resp, err := c.httpclient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch StatusCodeRangeOf(resp) {
	case Status2xx:
	case Status4xx:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		r.LastAction = &forge.Action{Succeeded: false, Message: parseErrorMessage(body)}
		return nil
	default:
		return errorResponse(resp, MessageFor{Status5xx: "server error"}, nil)
	}

	ack := jsonld.NewObject()
	if err := unmarshalJsonResponse(resp, ack, MessageFor{}); err != nil {
		return err
	}
	registered := fromNexus(ack)
	if id := registered.ID(); id != "" {
		r.Body.Set("id", id)
	}
	r.Metadata = registered.Metadata
	r.LastAction = &forge.Action{Succeeded: true, Message: fmt.Sprintf("registered (rev = %d)", r.Metadata.Rev)}

	if c.cache != nil {
		c.cache.Delete(cacheKey(r.ID(), false))
		c.cache.Delete(cacheKey(r.ID(), true))
	}
	return nil
}

// SchemaID looks up the schema for the type from the profile.
func (c *client) SchemaID(_ context.Context, schemaType string) (string, error) {
	if id := c.schemas[schemaType]; id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", forge.ErrNoSchema, schemaType)
}

func (c *client) Reshape(r *forge.Resource, fields []string) *jsonld.Object {
	return forge.Reshape(r.Body, fields)
}
