package jdbc

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/ajitpratap0/gluejdbc/pkg/dialect"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

const (
	jdbcPrefix   = "jdbc:"
	oracleThin   = "oracle:thin:"
	schemeSep    = "://"
	paramSID     = "connect_data"
	paramSIDMode = "SID"
)

// credential parameter names, compared case-insensitively
var (
	userParams     = []string{"user", "username"}
	passwordParams = []string{"password"}
)

// Parse turns a JDBC URL into a Descriptor.
//
// The URL must have the shape jdbc:<dialect>://<rest>, or one of the Oracle
// thin forms jdbc:oracle:thin:[user/password]@//host[:port]/service and
// jdbc:oracle:thin:[user/password]@host:port:SID. A well-formed URL naming an
// unknown dialect fails with KindUnsupportedDialect; anything else that does
// not fit fails with KindURLParse.
func Parse(raw string) (*Descriptor, error) {
	url := strings.TrimSpace(raw)
	if len(url) < len(jdbcPrefix) || !strings.EqualFold(url[:len(jdbcPrefix)], jdbcPrefix) {
		return nil, parseError(raw, "URL must start with jdbc:")
	}
	rest := url[len(jdbcPrefix):]

	if len(rest) >= len(oracleThin) && strings.EqualFold(rest[:len(oracleThin)], oracleThin) {
		desc, err := parseOracleThin(raw, rest[len(oracleThin):])
		if err != nil {
			return nil, err
		}
		return finish(desc, raw), nil
	}

	sep := strings.Index(rest, schemeSep)
	if sep <= 0 {
		return nil, parseError(raw, "URL must have the form jdbc:<dialect>://...")
	}
	token := rest[:sep]
	if !validToken(token) {
		return nil, parseError(raw, "invalid dialect token")
	}

	d, ok := dialect.Lookup(token)
	if !ok {
		return nil, jdbcerrors.Newf(jdbcerrors.KindUnsupportedDialect, "unsupported dialect %q", token).
			WithDetail("dialect", token)
	}

	body := rest[sep+len(schemeSep):]

	var (
		desc *Descriptor
		err  error
	)
	switch d {
	case dialect.SQLServer:
		desc, err = parseSQLServer(raw, body)
	default:
		desc, err = parseHostPathQuery(raw, body)
	}
	if err != nil {
		return nil, err
	}
	desc.ConnectionType = d
	return finish(desc, raw), nil
}

// finish applies the dialect default port and records provenance.
func finish(desc *Descriptor, raw string) *Descriptor {
	if desc.Port == 0 {
		desc.Port = desc.ConnectionType.Profile().DefaultPort
	}
	if len(desc.ExtraParams) == 0 {
		desc.ExtraParams = nil
	}
	desc.JDBCURL = raw
	return desc
}

// parseHostPathQuery handles [user[:password]@]host[:port]/database[?k=v&...],
// the grammar shared by postgresql, redshift, mysql and jdbc:oracle://.
func parseHostPathQuery(raw, body string) (*Descriptor, error) {
	query := ""
	if i := strings.IndexByte(body, '?'); i >= 0 {
		body, query = body[:i], body[i+1:]
	}

	authority, database, found := strings.Cut(body, "/")
	if !found || database == "" {
		return nil, parseError(raw, "missing database")
	}
	database = strings.TrimSuffix(database, "/")

	desc := &Descriptor{Database: database}
	if err := parseAuthority(raw, authority, desc); err != nil {
		return nil, err
	}

	desc.ExtraParams = splitQuery(query)
	extractCredentials(desc)
	return desc, nil
}

// parseSQLServer handles host[\instance][:port][;k=v;...]. The database comes
// from the databaseName or database property.
func parseSQLServer(raw, body string) (*Descriptor, error) {
	server, props, _ := strings.Cut(body, ";")

	// some tools emit host:port/database; accept it
	server, pathDB, _ := strings.Cut(server, "/")

	desc := &Descriptor{}
	params := splitParams(props, ";")

	if host, named, ok := strings.Cut(server, `\`); ok {
		// the instance sits between host and port: host\instance:port
		instance, port, hasPort := strings.Cut(named, ":")
		server = host
		if hasPort {
			server = host + ":" + port
		}
		if instance != "" {
			if params == nil {
				params = make(map[string]string)
			}
			if _, exists := lookupFold(params, "instanceName"); !exists {
				params["instanceName"] = instance
			}
		}
	}

	if err := parseAuthority(raw, server, desc); err != nil {
		return nil, err
	}

	desc.ExtraParams = params
	for _, key := range []string{"databaseName", "database"} {
		if k, ok := lookupFold(params, key); ok {
			desc.Database = params[k]
			delete(params, k)
			break
		}
	}
	if desc.Database == "" {
		desc.Database = pathDB
	}
	if desc.Database == "" {
		return nil, parseError(raw, "missing database: set databaseName")
	}

	extractCredentials(desc)
	return desc, nil
}

// parseOracleThin handles what follows jdbc:oracle:thin:
//
//	[user/password]@//host[:port]/service[?k=v]
//	[user/password]@host:port:SID
func parseOracleThin(raw, rest string) (*Descriptor, error) {
	at := strings.LastIndexByte(rest, '@')
	if at < 0 {
		return nil, parseError(raw, "oracle thin URL must contain @")
	}
	creds, target := rest[:at], rest[at+1:]

	var (
		desc *Descriptor
		err  error
	)
	if strings.HasPrefix(target, "//") {
		desc, err = parseHostPathQuery(raw, target[2:])
	} else {
		desc, err = parseOracleSID(raw, target)
	}
	if err != nil {
		return nil, err
	}

	desc.ConnectionType = dialect.Oracle
	if creds != "" {
		user, password, _ := strings.Cut(creds, "/")
		desc.Username = user
		desc.Password = password
	}
	return desc, nil
}

func parseOracleSID(raw, target string) (*Descriptor, error) {
	query := ""
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target, query = target[:i], target[i+1:]
	}

	parts := strings.Split(target, ":")
	desc := &Descriptor{}
	switch len(parts) {
	case 3:
		port, err := parsePort(raw, parts[1])
		if err != nil {
			return nil, err
		}
		desc.Host, desc.Port, desc.Database = parts[0], port, parts[2]
	case 2:
		desc.Host, desc.Database = parts[0], parts[1]
	default:
		return nil, parseError(raw, "oracle SID URL must be host:port:SID")
	}
	if desc.Host == "" {
		return nil, parseError(raw, "missing host")
	}
	if desc.Database == "" {
		return nil, parseError(raw, "missing SID")
	}

	desc.ExtraParams = splitQuery(query)
	if desc.ExtraParams == nil {
		desc.ExtraParams = make(map[string]string)
	}
	desc.ExtraParams[paramSID] = paramSIDMode
	extractCredentials(desc)
	return desc, nil
}

// parseAuthority fills host, port and userinfo credentials from
// [user[:password]@]host[:port]. IPv6 hosts must be bracketed.
func parseAuthority(raw, authority string, desc *Descriptor) error {
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		userinfo := authority[:at]
		authority = authority[at+1:]
		user, password, _ := strings.Cut(userinfo, ":")
		desc.Username = user
		desc.Password = password
	}

	host, port := authority, ""
	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return parseError(raw, "unterminated IPv6 host")
		}
		host = authority[1:end]
		remainder := authority[end+1:]
		if remainder != "" {
			if !strings.HasPrefix(remainder, ":") {
				return parseError(raw, "unexpected text after IPv6 host")
			}
			port = remainder[1:]
			if port == "" {
				return parseError(raw, "empty port")
			}
		}
	} else if i := strings.LastIndexByte(authority, ':'); i >= 0 {
		host, port = authority[:i], authority[i+1:]
		if port == "" {
			return parseError(raw, "empty port")
		}
	}

	if host == "" {
		return parseError(raw, "missing host")
	}
	desc.Host = host

	if port != "" {
		p, err := parsePort(raw, port)
		if err != nil {
			return err
		}
		desc.Port = p
	}
	return nil
}

func parsePort(raw, s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return 0, parseError(raw, "invalid port").WithDetail("port", s)
	}
	return p, nil
}

// splitQuery splits a '?' query string. Keys and values are percent-decoded
// the way JDBC drivers decode them; a segment that fails to decode is kept
// verbatim.
func splitQuery(s string) map[string]string {
	params := splitParams(s, "&")
	if params == nil {
		return nil
	}
	decoded := make(map[string]string, len(params))
	for k, v := range params {
		decoded[unescapeParam(k)] = unescapeParam(v)
	}
	return decoded
}

func unescapeParam(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	u, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return u
}

// splitParams splits k=v pairs on sep. Empty segments are dropped; a segment
// without '=' is kept verbatim as a key with an empty value. Values are not
// decoded: ';' properties are literal.
func splitParams(s, sep string) map[string]string {
	if s == "" {
		return nil
	}
	var params map[string]string
	for _, segment := range strings.Split(s, sep) {
		if segment == "" {
			continue
		}
		if params == nil {
			params = make(map[string]string)
		}
		k, v, _ := strings.Cut(segment, "=")
		params[k] = v
	}
	return params
}

// extractCredentials moves user/password properties into the descriptor.
// Properties win over userinfo when both are present.
func extractCredentials(desc *Descriptor) {
	for _, name := range userParams {
		if k, ok := lookupFold(desc.ExtraParams, name); ok {
			desc.Username = desc.ExtraParams[k]
			delete(desc.ExtraParams, k)
		}
	}
	for _, name := range passwordParams {
		if k, ok := lookupFold(desc.ExtraParams, name); ok {
			desc.Password = desc.ExtraParams[k]
			delete(desc.ExtraParams, k)
		}
	}
}

// lookupFold finds the key in params equal to name ignoring case.
func lookupFold(params map[string]string, name string) (string, bool) {
	if _, ok := params[name]; ok {
		return name, true
	}
	for k := range params {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

func validToken(token string) bool {
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == ':' || c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}

func parseError(raw, reason string) *jdbcerrors.Error {
	// the raw URL may embed a password; keep only its prefix
	prefix := raw
	if i := strings.Index(prefix, schemeSep); i >= 0 {
		prefix = prefix[:i+len(schemeSep)]
	} else if len(prefix) > 32 {
		prefix = prefix[:32]
	}
	return jdbcerrors.New(jdbcerrors.KindURLParse, reason).WithDetail("url_prefix", prefix)
}
