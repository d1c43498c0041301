package upnp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/koron/go-ssdp"
)

const (
	// gracefulShutdownTimeout is the maximum time to wait for in-flight
	// requests when the stack finishes.
	gracefulShutdownTimeout = 5 * time.Second

	readHeaderTimeout = 10 * time.Second

	// DefaultServerName is sent when Options.ServerName is empty.
	DefaultServerName = "Linux/1.0 UPnP/1.0 GrayMedia/dev"
)

func init() {
	chi.RegisterMethod("SUBSCRIBE")
	chi.RegisterMethod("UNSUBSCRIBE")
}

// Options configures an HTTPStack.
type Options struct {
	// ServerName is sent in the SERVER header and in SSDP announcements.
	ServerName string

	// Advertise creates SSDP advertisers. Defaults to SSDPAdvertise.
	Advertise AdvertiseFunc

	// Client delivers GENA event notifications. Defaults to a client with
	// a short timeout.
	Client *http.Client
}

// HTTPStack is a Stack serving description, control and eventing over
// HTTP and announcing devices with SSDP.
//
// Thread Safety: All methods are safe for concurrent use. Device callbacks
// run on the HTTP server's request goroutines and may be invoked concurrently.
type HTTPStack struct {
	mu         sync.RWMutex
	logger     Logger
	serverName string
	advertise  AdvertiseFunc
	client     *http.Client

	initialised bool
	ip          string
	port        int
	server      *http.Server

	webRoot string
	headers http.Header
	vdirs   map[string]http.Handler

	devices    map[DeviceHandle]*rootDevice
	nextHandle DeviceHandle

	wg sync.WaitGroup
}

type rootDevice struct {
	handle   DeviceHandle
	desc     *Description
	descXML  []byte
	callback Callback
	services map[string]*Service
	subs     *subscriptions

	advertisers []Advertiser
	stopAlive   chan struct{}
}

// NewHTTPStack creates an uninitialised stack.
func NewHTTPStack(opts Options) *HTTPStack {
	s := &HTTPStack{
		logger:     noopLogger{},
		serverName: opts.ServerName,
		advertise:  opts.Advertise,
		client:     opts.Client,
		headers:    make(http.Header),
		vdirs:      make(map[string]http.Handler),
		devices:    make(map[DeviceHandle]*rootDevice),
	}
	if s.serverName == "" {
		s.serverName = DefaultServerName
	}
	if s.advertise == nil {
		s.advertise = SSDPAdvertise
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: notifyTimeout}
	}
	return s
}

// SetLogger sets the logger for the stack.
func (s *HTTPStack) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Init binds the HTTP listener on ip, or on the first IPv4 address of
// iface when ip is empty. SSDP runs on the interface owning the address.
func (s *HTTPStack) Init(iface, ip string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialised {
		return ErrAlreadyInitialised
	}

	var (
		ifc  net.Interface
		addr net.IP
		err  error
	)
	if ip != "" {
		ifc, addr, err = interfaceForIP(ip)
	} else {
		ifc, addr, err = resolveInterface(iface)
	}
	if err != nil {
		return err
	}

	hostPort := net.JoinHostPort(addr.String(), strconv.Itoa(port))
	ln, err := net.Listen("tcp", hostPort)
	if err != nil {
		return fmt.Errorf("binding %s: %w", hostPort, err)
	}

	ssdp.Interfaces = []net.Interface{ifc}

	s.ip = addr.String()
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.initialised = true

	srv := s.server
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("upnp http server error", "error", err)
		}
	}()

	s.logger.Info("upnp stack initialised", "interface", ifc.Name, "ip", s.ip, "port", s.port)
	return nil
}

// ServerIP returns the bound address.
func (s *HTTPStack) ServerIP() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ip
}

// ServerPort returns the bound TCP port.
func (s *HTTPStack) ServerPort() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// SetWebRoot serves dir for requests that match no other route.
func (s *HTTPStack) SetWebRoot(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("web root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("web root %s: not a directory", dir)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialised {
		return ErrNotInitialised
	}
	s.webRoot = dir
	return nil
}

// AddCustomHeader adds a header to every response.
func (s *HTTPStack) AddCustomHeader(name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("upnp: empty header name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialised {
		return ErrNotInitialised
	}
	s.headers.Add(name, value)
	return nil
}

// AddVirtualDir serves h below /name/. The handler sees paths with the
// prefix stripped.
func (s *HTTPStack) AddVirtualDir(name string, h http.Handler) error {
	name = strings.Trim(name, "/")
	if name == "" || strings.Contains(name, "/") || name == "upnp" {
		return fmt.Errorf("%w: %q", ErrInvalidVirtualDir, name)
	}
	if h == nil {
		return fmt.Errorf("%w: nil handler", ErrInvalidVirtualDir)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialised {
		return ErrNotInitialised
	}
	s.vdirs[name] = http.StripPrefix("/"+name, h)
	return nil
}

// RegisterRootDevice assigns the service URLs, publishes the description
// and routes the device's requests to cb.
func (s *HTTPStack) RegisterRootDevice(desc *Description, cb Callback) (DeviceHandle, error) {
	if desc == nil || cb == nil {
		return 0, errors.New("upnp: description and callback are required")
	}
	if desc.Device.UDN == "" {
		return 0, errors.New("upnp: device UDN is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialised {
		return 0, ErrNotInitialised
	}

	s.nextHandle++
	h := s.nextHandle
	base := fmt.Sprintf("/upnp/%d", h)

	d := desc.clone()
	services := make(map[string]*Service, len(d.Device.Services))
	for i := range d.Device.Services {
		svc := &d.Device.Services[i]
		name := ShortName(svc.ServiceID)
		if _, dup := services[name]; dup {
			return 0, fmt.Errorf("upnp: duplicate service %s", svc.ServiceID)
		}
		svc.SCPDURL = path.Join(base, name, "scpd.xml")
		svc.ControlURL = path.Join(base, name, "control")
		svc.EventSubURL = path.Join(base, name, "event")
		services[name] = svc
	}

	raw, err := d.Marshal()
	if err != nil {
		return 0, err
	}

	s.devices[h] = &rootDevice{
		handle:   h,
		desc:     d,
		descXML:  raw,
		callback: cb,
		services: services,
		subs:     newSubscriptions(),
	}

	s.logger.Info("root device registered",
		"handle", int(h),
		"udn", d.Device.UDN,
		"location", s.descriptionURL(h),
	)
	return h, nil
}

// SendAdvertisement announces the device on every target and keeps
// re-announcing it at half the max-age until it is unregistered.
func (s *HTTPStack) SendAdvertisement(h DeviceHandle, maxAge time.Duration) error {
	s.mu.Lock()
	if !s.initialised {
		s.mu.Unlock()
		return ErrNotInitialised
	}
	dev, ok := s.devices[h]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownDevice
	}

	if dev.advertisers == nil {
		location := s.descriptionURL(h)
		seconds := int(maxAge / time.Second)
		var created []Advertiser
		for _, t := range advertisementTargets(dev.desc) {
			adv, err := s.advertise(t[0], t[1], location, s.serverName, seconds)
			if err != nil {
				s.mu.Unlock()
				closeAdvertisers(created, false)
				return err
			}
			created = append(created, adv)
		}
		dev.advertisers = created
		dev.stopAlive = make(chan struct{})

		if interval := maxAge / 2; interval > 0 {
			s.wg.Add(1)
			go s.aliveLoop(created, dev.stopAlive, interval)
		}
	}
	advertisers := dev.advertisers
	s.mu.Unlock()

	var errs []error
	for _, adv := range advertisers {
		if err := adv.Alive(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("sending alive: %w", err)
	}
	return nil
}

func (s *HTTPStack) aliveLoop(advertisers []Advertiser, stop <-chan struct{}, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, adv := range advertisers {
				if err := adv.Alive(); err != nil {
					s.logger.Warn("ssdp alive failed", "error", err)
				}
			}
		}
	}
}

// Notify sends vars to every live subscriber of the service.
func (s *HTTPStack) Notify(h DeviceHandle, serviceID string, vars []Arg) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialised {
		return ErrNotInitialised
	}
	dev, ok := s.devices[h]
	if !ok {
		return ErrUnknownDevice
	}
	if _, ok := dev.desc.Service(serviceID); !ok {
		return fmt.Errorf("upnp: unknown service %s", serviceID)
	}

	start, overflowed := dev.subs.publish(serviceID, renderPropertySet(vars))
	for _, sid := range overflowed {
		s.logger.Warn("event queue full, subscription cancelled", "sid", sid, "service", serviceID)
	}
	for _, sub := range start {
		s.startSender(dev.subs, sub)
	}
	return nil
}

// startSender drains the event queue of sub in order on one goroutine.
// Callers hold s.mu.
func (s *HTTPStack) startSender(subs *subscriptions, sub *subscription) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			t, body, ok := subs.next(sub)
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			err := sendNotify(ctx, s.client, t, body)
			cancel()
			if err != nil {
				s.logger.Warn("event notification failed", "sid", t.sid, "seq", t.seq, "error", err)
			}
		}
	}()
}

// UnregisterRootDevice stops advertising the device and sends byebye.
func (s *HTTPStack) UnregisterRootDevice(h DeviceHandle) error {
	s.mu.Lock()
	dev, ok := s.devices[h]
	if ok {
		delete(s.devices, h)
	}
	s.mu.Unlock()

	if !ok {
		return ErrUnknownDevice
	}
	s.logger.Info("root device unregistered", "handle", int(h), "udn", dev.desc.Device.UDN)
	return s.withdraw(dev)
}

func (s *HTTPStack) withdraw(dev *rootDevice) error {
	if dev.stopAlive != nil {
		close(dev.stopAlive)
	}
	dev.subs.clear()
	return closeAdvertisers(dev.advertisers, true)
}

func closeAdvertisers(advertisers []Advertiser, bye bool) error {
	var errs []error
	for _, adv := range advertisers {
		if bye {
			if err := adv.Bye(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := adv.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Finish withdraws any remaining devices, stops the HTTP server and waits
// for background work.
func (s *HTTPStack) Finish() error {
	s.mu.Lock()
	if !s.initialised {
		s.mu.Unlock()
		return ErrNotInitialised
	}
	devices := make([]*rootDevice, 0, len(s.devices))
	for _, dev := range s.devices {
		devices = append(devices, dev)
	}
	srv := s.server

	s.devices = make(map[DeviceHandle]*rootDevice)
	s.vdirs = make(map[string]http.Handler)
	s.headers = make(http.Header)
	s.webRoot = ""
	s.server = nil
	s.initialised = false
	s.mu.Unlock()

	var errs []error
	for _, dev := range devices {
		if err := s.withdraw(dev); err != nil {
			errs = append(errs, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down http server: %w", err))
	}

	s.wg.Wait()
	s.logger.Info("upnp stack finished")
	return errors.Join(errs...)
}

// descriptionURL returns the absolute location of a device description.
// Callers hold s.mu.
func (s *HTTPStack) descriptionURL(h DeviceHandle) string {
	return fmt.Sprintf("http://%s/upnp/%d/description.xml", net.JoinHostPort(s.ip, strconv.Itoa(s.port)), h)
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *HTTPStack) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.headersMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/upnp/{handle}", func(r chi.Router) {
		r.Get("/description.xml", s.handleDescription)
		r.Route("/{service}", func(r chi.Router) {
			r.Get("/scpd.xml", s.handleSCPD)
			r.Post("/control", s.handleControl)
			r.MethodFunc("SUBSCRIBE", "/event", s.handleSubscribe)
			r.MethodFunc("UNSUBSCRIBE", "/event", s.handleUnsubscribe)
		})
	})

	r.Handle("/*", http.HandlerFunc(s.handleContent))
	return r
}

func (s *HTTPStack) lookupDevice(r *http.Request) (*rootDevice, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "handle"))
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	dev, ok := s.devices[DeviceHandle(n)]
	return dev, ok
}

func (s *HTTPStack) lookupService(r *http.Request) (*rootDevice, *Service, bool) {
	dev, ok := s.lookupDevice(r)
	if !ok {
		return nil, nil, false
	}
	svc, ok := dev.services[chi.URLParam(r, "service")]
	return dev, svc, ok
}

func (s *HTTPStack) handleDescription(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeXML(w, dev.descXML)
}

func (s *HTTPStack) handleSCPD(w http.ResponseWriter, r *http.Request) {
	_, svc, ok := s.lookupService(r)
	if !ok || len(svc.SCPD) == 0 {
		http.NotFound(w, r)
		return
	}
	writeXML(w, svc.SCPD)
}

func writeXML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	_, _ = w.Write(body)
}

// handleControl decodes a SOAP request, hands it to the device callback
// and renders the result or fault the callback left in the event.
func (s *HTTPStack) handleControl(w http.ResponseWriter, r *http.Request) {
	dev, svc, ok := s.lookupService(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	action, err := parseSOAPAction(r.Body)
	if err != nil {
		s.logger.Warn("rejecting control request", "path", r.URL.Path, "error", err)
		writeSOAPFault(w, CodeInvalidAction, "")
		return
	}

	if action.Name == queryStateVariable && action.Namespace == ControlNamespace {
		s.handleQueryStateVariable(w, dev, svc, action)
		return
	}

	if _, name, ok := parseSOAPActionHeader(r.Header.Get("SOAPACTION")); ok && name != action.Name {
		writeSOAPFault(w, CodeInvalidAction, "SOAPACTION header does not match body")
		return
	}

	ev := &ActionEvent{
		DevUDN:     dev.desc.Device.UDN,
		ServiceID:  svc.ServiceID,
		ActionName: action.Name,
		Args:       action.Args,
	}
	code := dev.callback(EventActionRequest, ev)

	switch {
	case ev.ErrCode != 0:
		writeSOAPFault(w, ev.ErrCode, ev.ErrStr)
	case code != 0:
		writeSOAPFault(w, code, "")
	case !ev.Responded:
		writeSOAPFault(w, CodeActionFailed, "")
	default:
		writeSOAPResponse(w, svc.ServiceType, action.Name, ev.Result)
	}
}

func (s *HTTPStack) handleQueryStateVariable(w http.ResponseWriter, dev *rootDevice, svc *Service, action *soapAction) {
	ev := &StateVarEvent{
		DevUDN:    dev.desc.Device.UDN,
		ServiceID: svc.ServiceID,
	}
	for _, a := range action.Args {
		if a.Name == "varName" {
			ev.VarName = a.Value
		}
	}
	code := dev.callback(EventGetVarRequest, ev)

	switch {
	case ev.ErrCode != 0:
		writeSOAPFault(w, ev.ErrCode, ev.ErrStr)
	case code != 0:
		writeSOAPFault(w, code, "")
	default:
		writeSOAPResponse(w, ControlNamespace, queryStateVariable, []Arg{{Name: "return", Value: ev.Value}})
	}
}

// handleSubscribe accepts a new subscription or renews an existing one.
func (s *HTTPStack) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	dev, svc, ok := s.lookupService(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	timeout := parseTimeout(r.Header.Get("TIMEOUT"))

	if sid := r.Header.Get("SID"); sid != "" {
		if r.Header.Get("CALLBACK") != "" || r.Header.Get("NT") != "" {
			http.Error(w, "incompatible header fields", http.StatusBadRequest)
			return
		}
		if !dev.subs.renew(sid, svc.ServiceID, timeout) {
			http.Error(w, "unknown subscription", http.StatusPreconditionFailed)
			return
		}
		writeSubscribed(w, sid, timeout)
		return
	}

	if r.Header.Get("NT") != "upnp:event" {
		http.Error(w, "invalid NT header", http.StatusPreconditionFailed)
		return
	}
	callbacks := parseCallbacks(r.Header.Get("CALLBACK"))
	if len(callbacks) == 0 {
		http.Error(w, "invalid CALLBACK header", http.StatusPreconditionFailed)
		return
	}

	// The subscription only becomes visible to Notify once accepted, so
	// the initial event always carries SEQ 0.
	ev := &SubscriptionEvent{
		UDN:       dev.desc.Device.UDN,
		ServiceID: svc.ServiceID,
		SID:       newSID(),
	}
	code := dev.callback(EventSubscriptionRequest, ev)
	if code != 0 || !ev.Accepted {
		status := http.StatusInternalServerError
		if code == CodeInvalidAction {
			status = http.StatusPreconditionFailed
		}
		http.Error(w, ErrorDescription(code), status)
		return
	}

	sub := dev.subs.add(ev.SID, svc.ServiceID, callbacks, timeout, renderPropertySet(ev.Vars))
	writeSubscribed(w, sub.sid, timeout)

	s.mu.RLock()
	if s.initialised {
		s.startSender(dev.subs, sub)
	}
	s.mu.RUnlock()
}

func writeSubscribed(w http.ResponseWriter, sid string, timeout time.Duration) {
	w.Header().Set("SID", sid)
	w.Header().Set("TIMEOUT", "Second-"+strconv.Itoa(int(timeout/time.Second)))
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

func (s *HTTPStack) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	dev, svc, ok := s.lookupService(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	sid := r.Header.Get("SID")
	if sid == "" || !dev.subs.remove(sid, svc.ServiceID) {
		http.Error(w, "unknown subscription", http.StatusPreconditionFailed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleContent serves virtual directories first, then the web root.
func (s *HTTPStack) handleContent(w http.ResponseWriter, r *http.Request) {
	first, _, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	s.mu.RLock()
	vdir, isVirtual := s.vdirs[first]
	webRoot := s.webRoot
	s.mu.RUnlock()

	switch {
	case isVirtual:
		vdir.ServeHTTP(w, r)
	case webRoot != "":
		http.FileServer(http.Dir(webRoot)).ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}
