// Package offline synthesizes the bilingual offline document.
//
// The document is self-contained: inline styles only and no external assets,
// so it renders when nothing else can be fetched. Output depends only on the
// requested language, never on time or cache state.
package offline

import (
	"bytes"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/text/language"
)

// ContentType of the synthesized document.
const ContentType = "text/html; charset=utf-8"

var supported = []language.Tag{language.English, language.Portuguese}

var matcher = language.NewMatcher(supported)

type copyText struct {
	Heading string
	Message string
}

var texts = map[language.Tag]copyText{
	language.English: {
		Heading: "You're Offline",
		Message: "Can't connect to the Portuguese-speaking community right now. Check your internet connection and try again.",
	},
	language.Portuguese: {
		Heading: "Estás Offline",
		Message: "Não consegues conectar à comunidade de falantes de português. Verifica a tua ligação à internet.",
	},
}

type page struct {
	Lang      string
	Primary   copyText
	Secondary copyText
}

var pageTemplate = template.Must(template.New("offline").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>LusoTown - Offline | Comunidade de Falantes de Português</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; background: linear-gradient(135deg, #DC2626, #B91C1C); color: white; margin: 0; padding: 20px; min-height: 100vh; display: flex; align-items: center; justify-content: center; text-align: center; }
.container { max-width: 400px; padding: 2rem; background: rgba(255, 255, 255, 0.1); border-radius: 16px; }
h1 { margin-bottom: 0.5rem; font-size: 1.5rem; }
p { opacity: 0.9; line-height: 1.6; margin-bottom: 2rem; }
.secondary { font-style: italic; opacity: 0.8; margin-top: 1rem; }
.retry-btn { background: white; color: #DC2626; border: none; padding: 12px 24px; border-radius: 8px; font-weight: 600; cursor: pointer; }
</style>
</head>
<body>
<div class="container">
<h1>{{.Primary.Heading}}</h1>
<p>{{.Primary.Message}}</p>
<p class="secondary">{{.Secondary.Message}}</p>
<button class="retry-btn" id="retry" onclick="window.location.reload()">Try Again | Tentar Novamente</button>
</div>
</body>
</html>
`))

var rendered = map[language.Tag][]byte{}

func init() {
	for i, tag := range supported {
		other := supported[(i+1)%len(supported)]
		var buf bytes.Buffer
		if err := pageTemplate.Execute(&buf, page{
			Lang:      tag.String(),
			Primary:   texts[tag],
			Secondary: texts[other],
		}); err != nil {
			panic(err)
		}
		rendered[tag] = buf.Bytes()
	}
}

// Language picks the document language for an Accept-Language header.
// English is the default.
func Language(acceptLanguage string) language.Tag {
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return language.English
	}
	_, idx, conf := matcher.Match(prefs...)
	if conf == language.No {
		return language.English
	}
	return supported[idx]
}

// Document returns the offline HTML with the language of tag first and the
// other language as the secondary line.
func Document(tag language.Tag) []byte {
	if b, ok := rendered[tag]; ok {
		return bytes.Clone(b)
	}
	return bytes.Clone(rendered[language.English])
}

// Response builds a 200 response carrying the offline document for req.
// req may be nil.
func Response(req *http.Request) *http.Response {
	accept := ""
	if req != nil {
		accept = req.Header.Get("Accept-Language")
	}
	body := Document(Language(accept))
	return &http.Response{
		Status:     "200 OK",
		StatusCode: http.StatusOK,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header: http.Header{
			"Content-Type":   []string{ContentType},
			"Content-Length": []string{strconv.Itoa(len(body))},
			"Cache-Control":  []string{"no-store"},
		},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
