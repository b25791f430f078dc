package scheduler

import (
	"time"

	"github.com/rs/zerolog"
)

// TradingWindow is one open/close window within a trading day, in the
// calendar's own timezone.
type TradingWindow struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

// MarketCalendar holds the Indian cash market's trading hours and named
// holidays, trimmed from the teacher's multi-exchange ExchangeCalendar down to the single exchange this system trades.
type MarketCalendar struct {
	Timezone       *time.Location
	TradingWindows []TradingWindow
	Holidays       []time.Time
}

// MarketHoursService answers "is the market open right now" for the NSE
// cash session (09:15-15:30 IST), the gate the signal-generation job
// consults before running.
type MarketHoursService struct {
	calendar MarketCalendar
	log      zerolog.Logger
}

// NewMarketHoursService builds the NSE calendar for the 2026 trading year.
// Holiday dates are NSE's published 2026 trading holiday list.
func NewMarketHoursService(log zerolog.Logger) *MarketHoursService {
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		ist = time.FixedZone("IST", 5*3600+1800)
	}

	return &MarketHoursService{
		log: log.With().Str("component", "market_hours").Logger(),
		calendar: MarketCalendar{
			Timezone: ist,
			TradingWindows: []TradingWindow{
				{OpenHour: 9, OpenMinute: 15, CloseHour: 15, CloseMinute: 30},
			},
			Holidays: []time.Time{
				time.Date(2026, 1, 26, 0, 0, 0, 0, ist),  // Republic Day
				time.Date(2026, 3, 14, 0, 0, 0, 0, ist),  // Holi
				time.Date(2026, 3, 30, 0, 0, 0, 0, ist),  // Ram Navami
				time.Date(2026, 4, 2, 0, 0, 0, 0, ist),   // Mahavir Jayanti
				time.Date(2026, 4, 10, 0, 0, 0, 0, ist),  // Good Friday
				time.Date(2026, 4, 14, 0, 0, 0, 0, ist),  // Ambedkar Jayanti
				time.Date(2026, 5, 1, 0, 0, 0, 0, ist),   // Maharashtra Day
				time.Date(2026, 7, 7, 0, 0, 0, 0, ist),   // Bakri Id
				time.Date(2026, 8, 15, 0, 0, 0, 0, ist),  // Independence Day
				time.Date(2026, 10, 2, 0, 0, 0, 0, ist),  // Gandhi Jayanti
				time.Date(2026, 10, 23, 0, 0, 0, 0, ist), // Dussehra
				time.Date(2026, 11, 11, 0, 0, 0, 0, ist), // Diwali
				time.Date(2026, 11, 12, 0, 0, 0, 0, ist), // Diwali (Balipratipada)
				time.Date(2026, 11, 25, 0, 0, 0, 0, ist), // Gurunanak Jayanti
				time.Date(2026, 12, 25, 0, 0, 0, 0, ist), // Christmas
			},
		},
	}
}

// IsOpen reports whether the NSE cash session is trading at t.
func (s *MarketHoursService) IsOpen(t time.Time) bool {
	now := t.In(s.calendar.Timezone)

	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.calendar.Timezone)
	for _, holiday := range s.calendar.Holidays {
		if holiday.Equal(today) {
			return false
		}
	}

	currentMinutes := now.Hour()*60 + now.Minute()
	for _, window := range s.calendar.TradingWindows {
		openMinutes := window.OpenHour*60 + window.OpenMinute
		closeMinutes := window.CloseHour*60 + window.CloseMinute
		if currentMinutes >= openMinutes && currentMinutes < closeMinutes {
			return true
		}
	}
	return false
}

// IsMarketOpen reports whether the market is open right now, for callers
// (like the signal-generation job) that don't need to pin a specific instant.
func (s *MarketHoursService) IsMarketOpen() bool {
	return s.IsOpen(time.Now())
}
