package gmail

import "github.com/emersion/go-sasl"

// xoauth2Client implements the SASL XOAUTH2 mechanism Gmail uses for
// bearer-token logins. go-sasl ships OAUTHBEARER but not XOAUTH2, so the
// mechanism is implemented against its Client interface.
type xoauth2Client struct {
	identity string
	token    string
}

var _ sasl.Client = (*xoauth2Client)(nil)

func newXOAuth2Client(identity, token string) sasl.Client {
	return &xoauth2Client{identity: identity, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	resp := []byte("user=" + c.identity + "\x01auth=Bearer " + c.token + "\x01\x01")
	return "XOAUTH2", resp, nil
}

// Next acknowledges a server challenge with an empty response. Gmail only
// challenges on failure, sending a JSON error blob before the tagged NO.
func (c *xoauth2Client) Next([]byte) ([]byte, error) {
	return []byte{}, nil
}
