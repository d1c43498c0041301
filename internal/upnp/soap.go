package upnp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const (
	soapEncodingStyle = "http://schemas.xmlsoap.org/soap/encoding/"
	soapEnvelopeNS    = "http://schemas.xmlsoap.org/soap/envelope/"

	// queryStateVariable is the UPnP 1.0 control action for reading a
	// state variable directly.
	queryStateVariable = "QueryStateVariable"

	maxSOAPBody = 1 << 20
)

var errMalformedSOAP = errors.New("upnp: malformed SOAP request")

// soapAction is a decoded control request body.
type soapAction struct {
	Namespace string
	Name      string
	Args      []Arg
}

// parseSOAPAction decodes the first element of the SOAP body. Arguments are
// the direct children of the action element in document order.
func parseSOAPAction(r io.Reader) (*soapAction, error) {
	dec := xml.NewDecoder(io.LimitReader(r, maxSOAPBody))

	inBody := false
	var action *soapAction
	var argName string
	var argValue strings.Builder
	depth := 0

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedSOAP, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case !inBody:
				if t.Name.Local == "Body" {
					inBody = true
				}
			case action == nil:
				action = &soapAction{Namespace: t.Name.Space, Name: t.Name.Local}
				depth = 1
			default:
				depth++
				if depth == 2 {
					argName = t.Name.Local
					argValue.Reset()
				}
			}
		case xml.CharData:
			if depth == 2 {
				argValue.Write(t)
			}
		case xml.EndElement:
			if action == nil {
				continue
			}
			if depth == 2 {
				action.Args = append(action.Args, Arg{Name: argName, Value: argValue.String()})
			}
			depth--
			if depth == 0 {
				return action, nil
			}
		}
	}

	if action == nil {
		return nil, fmt.Errorf("%w: no action element", errMalformedSOAP)
	}
	return nil, fmt.Errorf("%w: unterminated action element", errMalformedSOAP)
}

// parseSOAPActionHeader splits a SOAPACTION header of the form
// "serviceType#Action", with or without quotes.
func parseSOAPActionHeader(h string) (serviceType, action string, ok bool) {
	h = strings.Trim(strings.TrimSpace(h), `"`)
	serviceType, action, ok = strings.Cut(h, "#")
	if !ok || serviceType == "" || action == "" {
		return "", "", false
	}
	return serviceType, action, true
}

// writeSOAPResponse renders a successful action response.
func writeSOAPResponse(w http.ResponseWriter, serviceType, action string, results []Arg) {
	var body bytes.Buffer
	fmt.Fprintf(&body, `<u:%sResponse xmlns:u="%s">`, action, escapeAttr(serviceType))
	for _, a := range results {
		body.WriteString("<")
		body.WriteString(a.Name)
		body.WriteString(">")
		_ = xml.EscapeText(&body, []byte(a.Value))
		body.WriteString("</")
		body.WriteString(a.Name)
		body.WriteString(">")
	}
	fmt.Fprintf(&body, "</u:%sResponse>", action)
	writeEnvelope(w, http.StatusOK, body.Bytes())
}

// writeSOAPFault renders a UPnPError fault. Content-Length is always set
// because clients treat a non-200 response without one as a transport error.
func writeSOAPFault(w http.ResponseWriter, code int, description string) {
	if description == "" {
		description = ErrorDescription(code)
	}
	var body bytes.Buffer
	body.WriteString("<s:Fault>")
	body.WriteString("<faultcode>s:Client</faultcode>")
	body.WriteString("<faultstring>UPnPError</faultstring>")
	body.WriteString("<detail>")
	body.WriteString(`<UPnPError xmlns="urn:schemas-upnp-org:control-1-0">`)
	body.WriteString("<errorCode>" + strconv.Itoa(code) + "</errorCode>")
	body.WriteString("<errorDescription>")
	_ = xml.EscapeText(&body, []byte(description))
	body.WriteString("</errorDescription>")
	body.WriteString("</UPnPError>")
	body.WriteString("</detail>")
	body.WriteString("</s:Fault>")
	writeEnvelope(w, http.StatusInternalServerError, body.Bytes())
}

func writeEnvelope(w http.ResponseWriter, status int, inner []byte) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, `<s:Envelope xmlns:s="%s" s:encodingStyle="%s"><s:Body>`, soapEnvelopeNS, soapEncodingStyle)
	buf.Write(inner)
	buf.WriteString("</s:Body></s:Envelope>")

	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("EXT", "")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func escapeAttr(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
