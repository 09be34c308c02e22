package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/repositories"
	"matsched/internal/utils"

	"github.com/phpdave11/gofpdf"
)

// DocsService renders passenger documents as PDF.
type DocsService struct {
	Store    repositories.Store
	Location *time.Location
}

type ticketData struct {
	Booking  models.Booking
	Schedule models.Schedule
	Plate    string
}

// ETicket renders the ticket of a confirmed booking.
func (s DocsService) ETicket(ctx context.Context, b models.Booking) ([]byte, string, error) {
	if b.Status != models.BookingConfirmed {
		return nil, "", domain.ValidationError{Field: "bookingId", Msg: fmt.Sprintf("booking is %s", b.Status)}
	}
	sched, err := s.Store.Schedules().GetSchedule(ctx, b.ScheduleID)
	if err != nil {
		return nil, "", scheduleLookupError(err)
	}
	d := ticketData{Booking: b, Schedule: sched}
	if veh, err := s.Store.Vehicles().GetVehicle(ctx, sched.VehicleID); err == nil {
		d.Plate = veh.Plate
	}
	utils.LogEvent(utils.RequestIDFrom(ctx), "docs", "generate_eticket", fmt.Sprintf("booking_id=%d", b.ID))
	return buildETicketPDF(d, s.location())
}

func (s DocsService) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.UTC
}

func buildETicketPDF(d ticketData, loc *time.Location) ([]byte, string, error) {
	b, sched := d.Booking, d.Schedule

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetTitle("E-Ticket "+b.Reference, false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	lines := []string{
		fmt.Sprintf("Reference   : %s", safe(b.Reference, "-")),
		fmt.Sprintf("Route       : %s -> %s", safe(sched.Origin, "-"), safe(sched.Destination, "-")),
		fmt.Sprintf("Departure   : %s %s", utils.FormatDate(sched.DepartureTime, loc), utils.FormatClock(sched.DepartureTime, loc)),
		fmt.Sprintf("Pickup      : %s", safe(b.Pickup, "-")),
		fmt.Sprintf("Dropoff     : %s", safe(b.Dropoff, "-")),
		fmt.Sprintf("Seat        : %d", b.SeatNumber),
		fmt.Sprintf("Vehicle     : %s", safe(d.Plate, "-")),
		fmt.Sprintf("Phone       : %s", utils.MaskPhone(b.Phone)),
		fmt.Sprintf("Fare        : %s", utils.FormatShillings(b.SegmentFare)),
		fmt.Sprintf("Service fee : %s", utils.FormatShillings(b.PlatformFee)),
		fmt.Sprintf("Paid        : %s", utils.FormatShillings(b.TotalAmount)),
		fmt.Sprintf("Receipt     : %s", safe(b.Receipt, "-")),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "Valid for one passenger on the seat and segment above. Show this ticket to the driver when boarding.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("ETICKET_%s_SEAT%d.pdf", safeFilenamePart(b.Reference), b.SeatNumber)
	return buf.Bytes(), filename, nil
}

func safe(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

func safeFilenamePart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "NA"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	s = replacer.Replace(s)
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
