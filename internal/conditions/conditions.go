// Package conditions copies the house temperature and humidity from the
// smart-home hub onto the Ledger's house page, so plant records sit next to
// the environment they live in. Unlike the watering passes this is a
// single-record write with no checkpointing: the newest reading always wins.
package conditions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kylielacour/plantbot/internal/ledger"
)

// Sensor reads entity states from a Home Assistant instance.
type Sensor struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewSensor creates a Sensor client for the hub at baseURL.
func NewSensor(baseURL, token string) *Sensor {
	return &Sensor{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NumericState fetches an entity's current state as a number.
func (s *Sensor) NumericState(ctx context.Context, entityID string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/states/"+entityID, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching state of %s: %w", entityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetching state of %s: status %d", entityID, resp.StatusCode)
	}

	var body struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decoding state of %s: %w", entityID, err)
	}

	v, err := strconv.ParseFloat(body.State, 64)
	if err != nil {
		// "unavailable" and "unknown" are normal hub answers for a sensor
		// that is offline; surface them as errors, not zeros.
		return 0, fmt.Errorf("entity %s state %q is not numeric", entityID, body.State)
	}
	return v, nil
}

// StateReader is the sensor surface Updater consumes.
type StateReader interface {
	NumericState(ctx context.Context, entityID string) (float64, error)
}

// PagePatcher is the Ledger surface Updater consumes.
type PagePatcher interface {
	PatchPage(ctx context.Context, pageID string, properties map[string]any) error
}

// Compile-time interface checks
var (
	_ StateReader = (*Sensor)(nil)
	_ PagePatcher = (*ledger.Client)(nil)
)

// Properties names the house page fields the updater writes.
type Properties struct {
	Temperature string
	Humidity    string
	UpdatedAt   string
}

// Updater reads the configured sensors and patches the house page.
type Updater struct {
	sensor StateReader
	ledger PagePatcher

	pageID     string
	tempEntity string
	humEntity  string
	props      Properties

	now func() time.Time
}

// NewUpdater wires an Updater.
func NewUpdater(sensor StateReader, patcher PagePatcher, pageID, tempEntity, humEntity string, props Properties) *Updater {
	return &Updater{
		sensor:     sensor,
		ledger:     patcher,
		pageID:     pageID,
		tempEntity: tempEntity,
		humEntity:  humEntity,
		props:      props,
		now:        time.Now,
	}
}

// Run reads both sensors and writes them to the house page in one patch.
// There is only one record, so any failure fails the run.
func (u *Updater) Run(ctx context.Context) (temp, humidity float64, err error) {
	temp, err = u.sensor.NumericState(ctx, u.tempEntity)
	if err != nil {
		return 0, 0, err
	}
	humidity, err = u.sensor.NumericState(ctx, u.humEntity)
	if err != nil {
		return 0, 0, err
	}

	props := map[string]any{
		u.props.Temperature: ledger.NumberValue(temp),
		u.props.Humidity:    ledger.NumberValue(humidity),
		u.props.UpdatedAt:   ledger.DateValue(u.now().Format(time.RFC3339)),
	}
	if err := u.ledger.PatchPage(ctx, u.pageID, props); err != nil {
		return 0, 0, fmt.Errorf("updating house conditions: %w", err)
	}
	return temp, humidity, nil
}
