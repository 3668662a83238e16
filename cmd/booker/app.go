package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/diagnosis/solaris-scheduler/pkg/apiclient"
	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/booking"
	"github.com/diagnosis/solaris-scheduler/pkg/schedule"
)

type authenticator interface {
	Login(ctx context.Context, email, password string) (*apiclient.AuthResponse, error)
}

// app is the terminal front end: one command per line, one rendered view per
// command.
type app struct {
	coord *booking.Coordinator
	mine  *booking.MyAppointments
	auth  authenticator
	out   io.Writer

	day     schedule.Date
	service string
}

const help = `commands:
  services             list bookable services
  service ID           switch service
  date YYYY-MM-DD      switch day
  slots                show the current view
  book N               book slot N of the current view
  refresh              reload the current day
  mine                 list your appointments
  login EMAIL PASSWORD sign in
  logout               sign out
  quit`

// run reads commands until EOF or quit.
func (a *app) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(a.out, "> ")
	for scanner.Scan() {
		if quit := a.exec(ctx, scanner.Text()); quit {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(a.out, "> ")
	}
	return scanner.Err()
}

func (a *app) exec(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "help", "?":
		fmt.Fprintln(a.out, help)
	case "services":
		a.printServices()
	case "service":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: service ID")
			return false
		}
		if a.day.IsZero() {
			a.pickService(args[0])
			return false
		}
		a.selectView(ctx, a.day, args[0])
	case "date":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: date YYYY-MM-DD")
			return false
		}
		day, err := schedule.ParseDate(args[0])
		if err != nil {
			fmt.Fprintf(a.out, "invalid date %q\n", args[0])
			return false
		}
		a.selectView(ctx, day, a.service)
	case "slots":
		a.printView()
	case "refresh":
		if err := a.coord.Refresh(ctx); err != nil {
			fmt.Fprintln(a.out, "nothing selected yet")
			return false
		}
		a.printView()
	case "book":
		a.book(ctx, args)
	case "mine":
		a.printMine(ctx)
	case "login":
		if len(args) != 2 {
			fmt.Fprintln(a.out, "usage: login EMAIL PASSWORD")
			return false
		}
		a.login(ctx, args[0], args[1])
	case "logout":
		a.coord.SetSession(booking.Session{})
		fmt.Fprintln(a.out, "signed out")
		a.reselect(ctx)
	default:
		fmt.Fprintf(a.out, "unknown command %q, try help\n", cmd)
	}
	return false
}

func (a *app) selectView(ctx context.Context, day schedule.Date, serviceID string) {
	if err := a.coord.Select(ctx, day, serviceID); err != nil {
		fmt.Fprintln(a.out, err)
		return
	}
	a.day, a.service = day, serviceID
	a.printView()
}

// pickService remembers the service until a day is chosen.
func (a *app) pickService(id string) {
	svc, err := a.coord.Catalog().Find(id)
	if err != nil {
		fmt.Fprintln(a.out, err)
		return
	}
	a.service = svc.ID
	fmt.Fprintf(a.out, "service set to %s\n", svc.Label)
}

// reselect reloads the current view after the session changed.
func (a *app) reselect(ctx context.Context) {
	if err := a.coord.Refresh(ctx); err == nil {
		a.printView()
	}
}

func (a *app) login(ctx context.Context, email, password string) {
	res, err := a.auth.Login(ctx, email, password)
	if errors.Is(err, appointment.ErrUnauthenticated) {
		fmt.Fprintln(a.out, "login failed: wrong email or password")
		return
	}
	if err != nil {
		fmt.Fprintf(a.out, "login failed: %s\n", describe(err))
		return
	}
	a.coord.SetSession(booking.Session{
		UserID: res.UserID,
		Name:   res.Name,
		Email:  res.Email,
		Role:   res.Role,
		Token:  res.Token,
	})
	fmt.Fprintf(a.out, "signed in as %s\n", res.Name)
	if a.mine != nil {
		_ = a.mine.Refresh(ctx)
	}
	a.reselect(ctx)
}

func (a *app) book(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "usage: book N")
		return
	}
	n, err := strconv.Atoi(args[0])
	slots := a.coord.View().Slots
	if err != nil || n < 1 || n > len(slots) {
		fmt.Fprintf(a.out, "no slot %q, pick 1-%d\n", args[0], len(slots))
		return
	}
	slot := slots[n-1]

	_, err = a.coord.Book(ctx, slot)
	switch {
	case errors.Is(err, booking.ErrBusy):
		fmt.Fprintln(a.out, "that slot is already being booked")
		return
	case errors.Is(err, booking.ErrNoSelection):
		fmt.Fprintln(a.out, "pick a date first")
		return
	}
	a.printView()
}

func (a *app) printServices() {
	for _, s := range a.coord.Catalog() {
		marker := " "
		if s.ID == a.service {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%s %-12s %-22s %d min\n", marker, s.ID, s.Label, s.DurationMinutes)
	}
}

func (a *app) printView() {
	v := a.coord.View()
	if v.Date.IsZero() {
		fmt.Fprintln(a.out, "no day selected, use: date YYYY-MM-DD")
		return
	}
	fmt.Fprintf(a.out, "%s %s, %s [%s]\n", v.Date.Weekday(), v.Date, v.Service.Label, v.Scope)
	for i, s := range v.Slots {
		suffix := ""
		if v.IsPending(s) {
			suffix = "  (booking...)"
		}
		fmt.Fprintf(a.out, "  %2d) %s%s\n", i+1, s.Label, suffix)
	}
	if v.Notice != nil {
		fmt.Fprintf(a.out, "! %s\n", v.Notice.Message)
		if v.Notice.Retryable {
			fmt.Fprintln(a.out, "  type refresh to try again")
		}
	}
}

func (a *app) printMine(ctx context.Context) {
	if a.mine == nil {
		return
	}
	if err := a.mine.Refresh(ctx); err != nil {
		fmt.Fprintf(a.out, "could not load your appointments: %s\n", describe(err))
		return
	}
	items := a.mine.Items()
	if len(items) == 0 {
		fmt.Fprintln(a.out, "no appointments")
		return
	}
	for _, it := range items {
		start, end, ok := it.Bounds()
		if !ok {
			continue
		}
		fmt.Fprintf(a.out, "  #%d %s %s-%s %s\n", it.ID, start.Date(), start.Clock(), end.Clock(), it.Title)
	}
}

func describe(err error) string {
	switch {
	case errors.Is(err, appointment.ErrUnauthenticated):
		return "sign in first"
	case errors.Is(err, appointment.ErrNetwork):
		return "server unreachable"
	}
	if apiErr, ok := apiclient.IsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
