package upnp

import (
	"encoding/xml"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

const browseRequest = `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
  <s:Body>
    <u:Browse xmlns:u="urn:schemas-upnp-org:service:ContentDirectory:1">
      <ObjectID>0</ObjectID>
      <BrowseFlag>BrowseDirectChildren</BrowseFlag>
      <Filter>*</Filter>
      <StartingIndex>0</StartingIndex>
      <RequestedCount>10</RequestedCount>
      <SortCriteria></SortCriteria>
    </u:Browse>
  </s:Body>
</s:Envelope>`

func TestParseSOAPAction(t *testing.T) {
	action, err := parseSOAPAction(strings.NewReader(browseRequest))
	if err != nil {
		t.Fatalf("parseSOAPAction() error = %v", err)
	}

	if action.Name != "Browse" {
		t.Errorf("Name = %q, want Browse", action.Name)
	}
	if action.Namespace != "urn:schemas-upnp-org:service:ContentDirectory:1" {
		t.Errorf("Namespace = %q", action.Namespace)
	}

	want := []Arg{
		{"ObjectID", "0"},
		{"BrowseFlag", "BrowseDirectChildren"},
		{"Filter", "*"},
		{"StartingIndex", "0"},
		{"RequestedCount", "10"},
		{"SortCriteria", ""},
	}
	if len(action.Args) != len(want) {
		t.Fatalf("Args = %v, want %v", action.Args, want)
	}
	for i := range want {
		if action.Args[i] != want[i] {
			t.Errorf("Args[%d] = %v, want %v", i, action.Args[i], want[i])
		}
	}
}

func TestParseSOAPActionEscapedValue(t *testing.T) {
	body := `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>` +
		`<u:Search xmlns:u="urn:x"><SearchCriteria>a &amp; b</SearchCriteria></u:Search>` +
		`</s:Body></s:Envelope>`

	action, err := parseSOAPAction(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parseSOAPAction() error = %v", err)
	}
	if got := action.Args[0].Value; got != "a & b" {
		t.Errorf("value = %q, want %q", got, "a & b")
	}
}

func TestParseSOAPActionMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"no body", `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"></s:Envelope>`},
		{"empty body", `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body></s:Body></s:Envelope>`},
		{"truncated", `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><u:Browse xmlns:u="urn:x"><ObjectID>0`},
		{"not xml", "GET / HTTP/1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSOAPAction(strings.NewReader(tt.body))
			if !errors.Is(err, errMalformedSOAP) {
				t.Errorf("parseSOAPAction() error = %v, want errMalformedSOAP", err)
			}
		})
	}
}

func TestParseSOAPActionHeader(t *testing.T) {
	tests := []struct {
		header      string
		wantService string
		wantAction  string
		wantOK      bool
	}{
		{`"urn:schemas-upnp-org:service:ContentDirectory:1#Browse"`, "urn:schemas-upnp-org:service:ContentDirectory:1", "Browse", true},
		{`urn:x#Y`, "urn:x", "Y", true},
		{`"urn:x"`, "", "", false},
		{`#Browse`, "", "", false},
		{``, "", "", false},
	}

	for _, tt := range tests {
		svc, action, ok := parseSOAPActionHeader(tt.header)
		if svc != tt.wantService || action != tt.wantAction || ok != tt.wantOK {
			t.Errorf("parseSOAPActionHeader(%q) = %q, %q, %v", tt.header, svc, action, ok)
		}
	}
}

func TestWriteSOAPResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSOAPResponse(rec, "urn:x:1", "GetSystemUpdateID", []Arg{{Name: "Id", Value: "<7>"}})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `<u:GetSystemUpdateIDResponse xmlns:u="urn:x:1"><Id>&lt;7&gt;</Id></u:GetSystemUpdateIDResponse>`) {
		t.Errorf("body = %s", body)
	}
	if got := rec.Header().Get("Content-Length"); got != strconv.Itoa(rec.Body.Len()) {
		t.Errorf("Content-Length = %s, body length %d", got, rec.Body.Len())
	}
}

func TestWriteSOAPFault(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSOAPFault(rec, CodeNoSuchObject, "")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if rec.Header().Get("Content-Length") == "" {
		t.Error("fault must carry Content-Length")
	}

	var env struct {
		Body struct {
			Fault struct {
				FaultCode   string `xml:"faultcode"`
				FaultString string `xml:"faultstring"`
				Detail      struct {
					UPnPError struct {
						ErrorCode        int    `xml:"errorCode"`
						ErrorDescription string `xml:"errorDescription"`
					} `xml:"UPnPError"`
				} `xml:"detail"`
			} `xml:"Fault"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal fault: %v", err)
	}

	f := env.Body.Fault
	if f.FaultString != "UPnPError" {
		t.Errorf("faultstring = %q", f.FaultString)
	}
	if f.Detail.UPnPError.ErrorCode != CodeNoSuchObject {
		t.Errorf("errorCode = %d, want %d", f.Detail.UPnPError.ErrorCode, CodeNoSuchObject)
	}
	if f.Detail.UPnPError.ErrorDescription != "No such object" {
		t.Errorf("errorDescription = %q", f.Detail.UPnPError.ErrorDescription)
	}
}
