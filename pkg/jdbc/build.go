package jdbc

import (
	neturl "net/url"
	"strconv"
	"strings"

	"github.com/ajitpratap0/gluejdbc/pkg/dialect"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
	stringpool "github.com/ajitpratap0/gluejdbc/pkg/strings"
)

// Build renders desc as a connectivity URL:
//
//	<scheme>://[user[:password]@]host:port/database[?k=v&...]
//
// Credentials and the database are percent-encoded and parameters are sorted
// by key, so the output depends only on the descriptor. Generic descriptors
// and any dialect without a driver mapping fail with KindUnsupportedDialect.
func Build(desc *Descriptor) (string, error) {
	if desc == nil {
		return "", jdbcerrors.New(jdbcerrors.KindValidation, "descriptor is nil")
	}

	profile := desc.ConnectionType.Profile()
	if profile.Scheme == "" {
		return "", jdbcerrors.Newf(jdbcerrors.KindUnsupportedDialect,
			"no driver mapping for dialect %s", desc.ConnectionType).
			WithDetail("dialect", desc.ConnectionType.String())
	}
	if desc.Host == "" {
		return "", jdbcerrors.New(jdbcerrors.KindValidation, "descriptor has no host")
	}
	if desc.Database == "" {
		return "", jdbcerrors.New(jdbcerrors.KindValidation, "descriptor has no database")
	}

	port := desc.Port
	if port == 0 {
		port = profile.DefaultPort
	}

	ub := stringpool.NewURLBuilder(profile.Scheme)
	defer ub.Close()

	ub.SetUserinfo(desc.Username, desc.Password).
		SetHost(desc.Host, port).
		AddPath(desc.Database).
		AddParams(desc.ExtraParams).
		AddParams(profile.SchemeParams)

	return ub.String(), nil
}

// Decode reverses Build: it reads a connectivity URL back into a Descriptor.
// Scheme parameters such as the Redshift flag are consumed, not returned as
// extra parameters.
func Decode(connURL string) (*Descriptor, error) {
	u, err := neturl.Parse(connURL)
	if err != nil {
		return nil, jdbcerrors.Wrap(err, jdbcerrors.KindURLParse, "invalid connectivity URL")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, jdbcerrors.New(jdbcerrors.KindURLParse, "connectivity URL needs scheme://host")
	}

	params := make(map[string]string)
	for k, values := range u.Query() {
		if len(values) > 0 {
			params[k] = values[len(values)-1]
		} else {
			params[k] = ""
		}
	}

	d, ok := dialect.FromScheme(u.Scheme, params)
	if !ok {
		return nil, jdbcerrors.Newf(jdbcerrors.KindUnsupportedDialect, "unsupported scheme %q", u.Scheme).
			WithDetail("scheme", u.Scheme)
	}
	for k := range d.Profile().SchemeParams {
		delete(params, k)
	}

	desc := &Descriptor{
		ConnectionType: d,
		Host:           u.Hostname(),
		Database:       strings.TrimPrefix(u.Path, "/"),
	}
	if desc.Database == "" {
		return nil, jdbcerrors.New(jdbcerrors.KindURLParse, "connectivity URL has no database")
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, jdbcerrors.New(jdbcerrors.KindURLParse, "invalid port").WithDetail("port", p)
		}
		desc.Port = port
	} else {
		desc.Port = d.Profile().DefaultPort
	}

	if u.User != nil {
		desc.Username = u.User.Username()
		desc.Password, _ = u.User.Password()
	}
	if len(params) > 0 {
		desc.ExtraParams = params
	}
	return desc, nil
}
