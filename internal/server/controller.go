package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-media/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-media/internal/services"
	"github.com/nerrad567/gray-logic-media/internal/upnp"
)

// Service handles the actions and subscriptions of one UPnP service.
type Service interface {
	ProcessAction(req *upnp.ActionRequest) error
	ProcessSubscription(req *upnp.SubscriptionRequest) error
}

// Services is the routing table of the device.
type Services struct {
	ContentDirectory       Service
	ConnectionManager      Service
	MediaReceiverRegistrar Service
}

// VirtualURLSetter is implemented by services that build resource URLs.
type VirtualURLSetter interface {
	SetVirtualURL(u string)
}

// Storage is the storage backend's per-thread resource hook.
type Storage interface {
	ThreadCleanupRequired() bool
	ThreadCleanup() error
}

// Subsystem is a dependent component started once the device is
// advertised and stopped before it is withdrawn.
type Subsystem interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// Logger defines the logging interface used by the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the dependencies of a Controller.
type Deps struct {
	Config   config.ServerConfig
	Stack    upnp.Stack
	Services Services

	// ContentHandler is mounted at the virtual directory. Optional.
	ContentHandler http.Handler

	// Storage receives the thread cleanup call at shutdown. Optional.
	Storage Storage

	// Observer is told about every dispatched event. Optional.
	Observer DispatchObserver

	Subsystems []Subsystem
	Logger     Logger
}

// Controller owns the media server device: it binds the stack, registers
// the device, routes its events to the services and withdraws it again.
//
// Thread Safety: HandleEvent may be called from any number of goroutines;
// events are dispatched one at a time. Start and Shutdown are called once
// each by the owner.
type Controller struct {
	cfg            config.ServerConfig
	stack          upnp.Stack
	routes         map[string]Service
	contentHandler http.Handler
	storage        Storage
	observer       DispatchObserver
	subsystems     []Subsystem
	logger         Logger

	// mu serialises event dispatch.
	mu sync.Mutex

	state        atomic.Int32
	startCalled  atomic.Bool
	shuttingDown atomic.Bool

	handle          upnp.DeviceHandle
	ip              string
	port            int
	virtualURL      string
	presentationURL string
	running         []Subsystem
}

// New creates a controller. The routing table is fixed from here on.
func New(deps Deps) (*Controller, error) {
	if deps.Stack == nil {
		return nil, errors.New("server: stack is required")
	}
	s := deps.Services
	if s.ContentDirectory == nil || s.ConnectionManager == nil || s.MediaReceiverRegistrar == nil {
		return nil, errors.New("server: all three services are required")
	}

	c := &Controller{
		cfg:   deps.Config,
		stack: deps.Stack,
		routes: map[string]Service{
			services.ContentDirectoryID:       s.ContentDirectory,
			services.ConnectionManagerID:      s.ConnectionManager,
			services.MediaReceiverRegistrarID: s.MediaReceiverRegistrar,
		},
		contentHandler: deps.ContentHandler,
		storage:        deps.Storage,
		observer:       deps.Observer,
		subsystems:     deps.Subsystems,
		logger:         deps.Logger,
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	c.logger.Debug("controller state changed", "state", s.String())
}

// VirtualURL returns the base URL of the content virtual directory.
// Empty until the stack is bound.
func (c *Controller) VirtualURL() string {
	return c.virtualURL
}

// PresentationURL returns the resolved presentation URL.
func (c *Controller) PresentationURL() string {
	return c.presentationURL
}

// Start brings the device from Uninitialized to Active. On error the
// owner calls Shutdown to release whatever was acquired.
func (c *Controller) Start(ctx context.Context) error {
	if c.startCalled.Swap(true) || c.shuttingDown.Load() {
		return ErrAlreadyStarted
	}

	if err := c.bind(); err != nil {
		return err
	}
	if err := c.register(); err != nil {
		return err
	}
	return c.activate(ctx)
}

// bind resolves the interface and initialises the stack.
func (c *Controller) bind() error {
	if c.cfg.Interface != "" && c.cfg.IP != "" {
		return fmt.Errorf("%w: interface and ip are mutually exclusive", ErrInvalidConfig)
	}

	if err := c.stack.Init(c.cfg.Interface, c.cfg.IP, c.cfg.Port); err != nil {
		return upnp.RegistrationError("initialising upnp stack", err)
	}

	c.ip = c.stack.ServerIP()
	c.port = c.stack.ServerPort()
	c.virtualURL = fmt.Sprintf("http://%s/%s", c.hostPort(), c.cfg.VirtualDir)
	c.setState(StateBound)

	for _, svc := range c.routes {
		if s, ok := svc.(VirtualURLSetter); ok {
			s.SetVirtualURL(c.virtualURL)
		}
	}

	c.logger.Info("upnp stack bound", "ip", c.ip, "port", c.port, "virtual_url", c.virtualURL)
	return nil
}

// register configures HTTP serving and registers the root device.
func (c *Controller) register() error {
	if c.cfg.WebRoot == "" {
		return fmt.Errorf("%w: web root is not set", ErrInvalidConfig)
	}
	if err := c.stack.SetWebRoot(c.cfg.WebRoot); err != nil {
		return upnp.RegistrationError("setting web root", err)
	}

	for _, line := range c.cfg.CustomHTTPHeaders {
		name, value, err := config.ParseHeader(line)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if err := c.stack.AddCustomHeader(name, value); err != nil {
			return upnp.RegistrationError("adding custom header "+name, err)
		}
	}

	if c.contentHandler != nil {
		if err := c.stack.AddVirtualDir(c.cfg.VirtualDir, c.contentHandler); err != nil {
			return upnp.RegistrationError("adding virtual directory", err)
		}
	}

	c.presentationURL = ResolvePresentationURL(c.cfg.PresentationURL, c.cfg.AppendPresentationURLTo, c.ip, c.port)

	desc, err := c.description()
	if err != nil {
		return upnp.InternalError(err)
	}
	handle, err := c.stack.RegisterRootDevice(desc, c.HandleEvent)
	if err != nil {
		return upnp.RegistrationError("registering root device", err)
	}
	c.handle = handle
	c.setState(StateRegistered)

	c.logger.Info("root device registered", "udn", c.cfg.UDN, "presentation_url", c.presentationURL)
	return nil
}

// activate advertises the device and starts the dependent subsystems.
func (c *Controller) activate(ctx context.Context) error {
	if err := c.stack.SendAdvertisement(c.handle, c.cfg.AliveIntervalDuration()); err != nil {
		return upnp.RegistrationError("sending advertisement", err)
	}
	c.setState(StateActive)

	for _, sub := range c.subsystems {
		if err := sub.Start(ctx); err != nil {
			return fmt.Errorf("starting %s: %w", sub.Name(), err)
		}
		c.running = append(c.running, sub)
		c.logger.Info("subsystem started", "name", sub.Name())
	}

	if err := writeBookmark(c.cfg.BookmarkPath, c.ip, c.port); err != nil {
		c.logger.Warn("writing bookmark", "path", c.cfg.BookmarkPath, "error", err)
	}

	c.logger.Info("media server active",
		"friendly_name", c.cfg.FriendlyName,
		"address", c.hostPort(),
	)
	return nil
}

// Shutdown withdraws the device and releases the stack. Only the first
// call does any work.
func (c *Controller) Shutdown() error {
	if c.shuttingDown.Swap(true) {
		return nil
	}
	prev := c.State()
	c.logger.Info("shutting down media server", "state", prev.String())

	var errs []error
	for i := len(c.running) - 1; i >= 0; i-- {
		sub := c.running[i]
		if err := sub.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", sub.Name(), err))
		}
	}
	c.running = nil

	if prev >= StateRegistered {
		if err := c.stack.UnregisterRootDevice(c.handle); err != nil {
			errs = append(errs, fmt.Errorf("unregistering root device: %w", err))
		}
	}
	c.setState(StateShuttingDown)

	if prev >= StateBound {
		if err := c.stack.Finish(); err != nil {
			errs = append(errs, fmt.Errorf("finishing upnp stack: %w", err))
		}
	}

	if c.storage != nil && c.storage.ThreadCleanupRequired() {
		if err := c.storage.ThreadCleanup(); err != nil {
			errs = append(errs, fmt.Errorf("storage thread cleanup: %w", err))
		}
	}

	c.setState(StateUnregistered)
	return errors.Join(errs...)
}

// Notify sends evented variables of a service to its subscribers.
func (c *Controller) Notify(serviceID string, vars []upnp.Arg) error {
	if c.State() != StateActive || c.shuttingDown.Load() {
		return ErrNotActive
	}
	return c.stack.Notify(c.handle, serviceID, vars)
}

func (c *Controller) hostPort() string {
	return net.JoinHostPort(c.ip, strconv.Itoa(c.port))
}

// description builds the device description with the service list.
func (c *Controller) description() (*upnp.Description, error) {
	svcs, err := services.Descriptions()
	if err != nil {
		return nil, err
	}
	return upnp.NewDescription(upnp.Device{
		DeviceType:       upnp.MediaServerDeviceType,
		FriendlyName:     c.cfg.FriendlyName,
		Manufacturer:     c.cfg.Manufacturer,
		ModelDescription: "UPnP media server",
		ModelName:        c.cfg.ModelName,
		ModelNumber:      c.cfg.ModelNumber,
		SerialNumber:     c.cfg.SerialNumber,
		UDN:              c.cfg.UDN,
		PresentationURL:  c.presentationURL,
		Services:         svcs,
	}), nil
}

// DispatchObserver is told about every event the controller dispatched.
type DispatchObserver interface {
	ObserveDispatch(d Dispatch)
}

// Dispatch summarises one handled event.
type Dispatch struct {
	EventType upnp.EventType
	ServiceID string
	Action    string
	Code      int
	Duration  time.Duration
}
