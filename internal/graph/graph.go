package graph

const (
	// APIURL is the url of the Facebook Graph API
	APIURL = "https://graph.facebook.com"

	// DefaultAPIVersion is the Graph API version used when none is configured
	DefaultAPIVersion = "v12.0"

	// Feed is the page edge that text and link posts are created on
	Feed Edge = "feed"

	// Photos is the page edge used when the post carries an image url. The
	// Graph API creates the photo and the page post that wraps it in one call.
	Photos Edge = "photos"
)

// Edge is a connection on the page node that posts are created through.
type Edge string

func (e Edge) String() string { return string(e) }

// Payload represents the JSON body sent to the Graph API when creating or
// updating a post. The keys understood by the API are:
//
// message   - the text of the post
// url       - the image link, photos edge only
// link      - a link attachment, feed edge only
// published - false keeps the post unpublished on the page
type Payload map[string]interface{}

// defaultPayload is the template every create request starts from. It must
// never be handed out directly, use NewPayload.
var defaultPayload = Payload{
	"message":   nil,
	"link":      nil,
	"published": false,
}

// NewPayload returns a fresh copy of the default post template.
func NewPayload() Payload {
	return defaultPayload.Clone()
}

// Clone returns a deep copy of the payload so changes to the copy never reach
// the original.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}

	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}

	return out
}

// compact drops the keys that are still unset. The template carries them as
// nil and the Graph API rejects explicit nulls for link.
func (p Payload) compact() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		if v == nil {
			continue
		}
		out[k] = v
	}

	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Payload:
		return t.Clone()
	case map[string]interface{}:
		return map[string]interface{}(Payload(t).Clone())
	case []interface{}:
		s := make([]interface{}, len(t))
		for i := range t {
			s[i] = cloneValue(t[i])
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Response is the decoded JSON body the Graph API returned. Its shape depends
// on the call, create returns the new id, delete returns {"success": true}
// and read returns the post fields.
type Response map[string]interface{}

// ID returns the id field of the response or an empty string when the
// response has none.
func (r Response) ID() string {
	id, _ := r["id"].(string)
	return id
}

// PostID returns the page post id of the response. The photos edge returns
// the photo id as id and the wrapping page post as post_id.
func (r Response) PostID() string {
	if id, ok := r["post_id"].(string); ok && id != "" {
		return id
	}

	return r.ID()
}
