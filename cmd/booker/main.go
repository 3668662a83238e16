// Command booker is a terminal client for the appointment scheduler. It shows
// the free slots of a day and books them against the appointments service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/solaris-scheduler/pkg/apiclient"
	"github.com/diagnosis/solaris-scheduler/pkg/availability"
	"github.com/diagnosis/solaris-scheduler/pkg/booking"
	"github.com/diagnosis/solaris-scheduler/pkg/config"
	"github.com/diagnosis/solaris-scheduler/pkg/events"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
	"github.com/diagnosis/solaris-scheduler/pkg/schedule"
)

func main() {
	cfg := config.Load()

	appointmentsURL := flag.String("api", cfg.Client.AppointmentsURL, "appointments service base URL")
	authURL := flag.String("auth", cfg.Client.AuthURL, "auth service base URL")
	email := flag.String("email", os.Getenv("BOOKER_EMAIL"), "sign in with this email on start")
	password := flag.String("password", os.Getenv("BOOKER_PASSWORD"), "password for -email")
	date := flag.String("date", "", "day to show, YYYY-MM-DD (default today)")
	serviceID := flag.String("service", "massage", "service to show")
	verbose := flag.Bool("v", false, "log to stderr")
	flag.Parse()

	// Logs would interleave with the prompt, so they go to stderr and only on request.
	level := "error"
	if *verbose {
		level = "debug"
	}
	logger.SetDefault(logger.New(os.Stderr, level))
	log := logger.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientCfg := cfg.Client
	clientCfg.AppointmentsURL = *appointmentsURL
	clientCfg.AuthURL = *authURL
	client := apiclient.FromConfig(clientCfg)

	bus := events.Default()
	if cfg.NATS.Enabled {
		remote, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			log.Warn("NATS unavailable, only local bookings refresh the views", "error", err)
		} else {
			defer remote.Close()
			bridge := events.NewBridge(bus, remote)
			defer bridge.Forward(events.TopicAppointmentBooked, events.TopicAppointmentDeleted)()
			if err := bridge.Import(events.TopicAppointmentBooked, events.TopicAppointmentDeleted); err != nil {
				log.Warn("Failed to subscribe to remote events", "error", err)
			}
		}
	}

	coord := booking.NewCoordinator(booking.Config{
		Loader:       availability.NewLoader(client, log),
		Backend:      client,
		Bus:          bus,
		Catalog:      schedule.DefaultCatalog.WithHours(cfg.Schedule.Hours()),
		WeekdaysOnly: cfg.Schedule.WeekdaysOnly,
		Logger:       log,
	})
	mine := booking.NewMyAppointments(client, bus, coord, log)

	a := &app{coord: coord, mine: mine, auth: client, out: os.Stdout, service: *serviceID}

	if *email != "" {
		a.login(ctx, *email, *password)
	}
	if err := mine.Mount(ctx); err != nil && coord.Session().Authenticated() {
		log.Warn("Failed to load own appointments", "error", err)
	}
	defer mine.Unmount()

	day := schedule.DateOf(time.Now())
	if *date != "" {
		d, err := schedule.ParseDate(*date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -date %q\n", *date)
			os.Exit(2)
		}
		day = d
	}
	a.selectView(ctx, day, *serviceID)

	if err := a.run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
