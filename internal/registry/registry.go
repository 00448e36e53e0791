// Package registry implements the typed parameter-server/master client: a
// thin, typed layer over internal/xmlrpc's raw method calls, unwrapping the
// [code, message, value] triplet every ROS master API response carries.
package registry

import (
	"context"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-roslaunch/roslaunch/internal/names"
	"github.com/go-roslaunch/roslaunch/internal/xmlrpc"
)

// API status codes, per the ROS master API convention.
const (
	StatusError   int32 = -1
	StatusFailure int32 = 0
	StatusSuccess int32 = 1
)

// Client is a caller-identified connection to one master URI.
type Client struct {
	CallerID string
	URI      string
}

// NewClient builds a Client. callerID is sent as the first argument of
// every call, identifying this launcher to the master.
func NewClient(callerID, uri string) *Client {
	return &Client{CallerID: callerID, URI: uri}
}

// call performs method and unwraps the standard triplet, raising an error
// for a non-success status code or a malformed response shape.
func (c *Client) call(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	result, err := xmlrpc.Call(ctx, c.URI, method, args...)
	if err != nil {
		return nil, err
	}
	return unwrapTriplet(method, result)
}

// callPermissive is like call but, per this client's GetParam leniency
// decision, returns (nil, nil) instead of an error when the master's
// response does not have the expected triplet shape, rather than failing
// the whole launch over a malformed GetParam reply.
func (c *Client) callPermissive(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	result, err := xmlrpc.Call(ctx, c.URI, method, args...)
	if err != nil {
		return nil, err
	}
	value, err := unwrapTriplet(method, result)
	if err != nil {
		return nil, nil
	}
	return value, nil
}

func unwrapTriplet(method string, result interface{}) (interface{}, error) {
	xs, ok := result.([]interface{})
	if !ok || len(xs) != 3 {
		return nil, errors.Errorf("registry: malformed result for %q", method)
	}
	code, ok := xs[0].(int32)
	if !ok {
		return nil, errors.Errorf("registry: %q status code is not an int", method)
	}
	message, _ := xs[1].(string)
	if code != StatusSuccess {
		return nil, errors.Errorf("registry: %q failed with code %d: %s", method, code, message)
	}
	return xs[2], nil
}

// GetParam fetches the value at key. Per this client's leniency decision,
// a malformed or incomplete response is treated as "no value" rather
// than a fatal error.
func (c *Client) GetParam(ctx context.Context, key string) (interface{}, error) {
	return c.callPermissive(ctx, "getParam", c.CallerID, key)
}

// HasParam reports whether key is set.
func (c *Client) HasParam(ctx context.Context, key string) (bool, error) {
	value, err := c.call(ctx, "hasParam", c.CallerID, key)
	if err != nil {
		return false, err
	}
	b, _ := value.(bool)
	return b, nil
}

// SetParam sets key to value directly, with no mapping expansion.
func (c *Client) SetParam(ctx context.Context, key string, value interface{}) error {
	_, err := c.call(ctx, "setParam", c.CallerID, key, value)
	return err
}

// DeleteParam deletes the subtree rooted at key.
func (c *Client) DeleteParam(ctx context.Context, key string) error {
	_, err := c.call(ctx, "deleteParam", c.CallerID, key)
	return err
}

// SearchParam searches upward from key's namespace for the nearest
// definition, returning "" if none is found.
func (c *Client) SearchParam(ctx context.Context, key string) (string, error) {
	value, err := c.call(ctx, "searchParam", c.CallerID, key)
	if err != nil {
		return "", err
	}
	s, _ := value.(string)
	return s, nil
}

// ClearParam empties the subtree at key by setting it to an empty struct,
//.5.
func (c *Client) ClearParam(ctx context.Context, key string) error {
	return c.SetParam(ctx, key, map[string]interface{}{})
}

// SetYamlParam implements mapping-expansion rule: a YAML
// document whose root is a mapping is recursively flattened, leaf by
// leaf, into individual setParam calls at the joined namespace; any other
// root value is set directly at namespace.
func (c *Client) SetYamlParam(ctx context.Context, namespace string, doc []byte) error {
	var value interface{}
	if err := yaml.Unmarshal(doc, &value); err != nil {
		return errors.Wrap(err, "registry: parsing YAML for setYamlParam")
	}
	return c.setYamlValue(ctx, namespace, normalizeYAML(value))
}

func (c *Client) setYamlValue(ctx context.Context, path string, value interface{}) error {
	m, ok := value.(map[string]interface{})
	if !ok {
		return c.SetParam(ctx, path, value)
	}
	for k, v := range m {
		if err := c.setYamlValue(ctx, names.JoinNamespace(path, k), v); err != nil {
			return err
		}
	}
	return nil
}

// normalizeYAML converts yaml.v3's map[string]interface{} decoding
// (already string-keyed, unlike yaml.v2) recursively so nested mappings
// are walked the same way at every depth.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}

// SystemState is getSystemState's three publisher/subscriber/service
// topic-to-node-list tables.
type SystemState struct {
	Publishers  map[string][]string
	Subscribers map[string][]string
	Services    map[string][]string
}

// GetSystemState probes the master, used both to detect an already-
// running master and for general introspection.
func (c *Client) GetSystemState(ctx context.Context) (*SystemState, error) {
	value, err := c.call(ctx, "getSystemState", c.CallerID)
	if err != nil {
		return nil, err
	}
	rows, ok := value.([]interface{})
	if !ok || len(rows) != 3 {
		return nil, errors.New("registry: malformed getSystemState result")
	}
	pubs, err := parseStateTable(rows[0])
	if err != nil {
		return nil, errors.Wrap(err, "publishers")
	}
	subs, err := parseStateTable(rows[1])
	if err != nil {
		return nil, errors.Wrap(err, "subscribers")
	}
	svcs, err := parseStateTable(rows[2])
	if err != nil {
		return nil, errors.Wrap(err, "services")
	}
	return &SystemState{Publishers: pubs, Subscribers: subs, Services: svcs}, nil
}

func parseStateTable(v interface{}) (map[string][]string, error) {
	rows, ok := v.([]interface{})
	if !ok {
		return nil, errors.New("registry: malformed state table")
	}
	table := make(map[string][]string, len(rows))
	for _, row := range rows {
		pair, ok := row.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, errors.New("registry: malformed state table row")
		}
		topic, ok := pair[0].(string)
		if !ok {
			return nil, errors.New("registry: state table topic is not a string")
		}
		nodeList, ok := pair[1].([]interface{})
		if !ok {
			return nil, errors.New("registry: state table node list is malformed")
		}
		nodes := make([]string, 0, len(nodeList))
		for _, n := range nodeList {
			s, ok := n.(string)
			if !ok {
				return nil, errors.New("registry: state table node is not a string")
			}
			nodes = append(nodes, s)
		}
		table[topic] = nodes
	}
	return table, nil
}
