// internal/devices/registry.go
//
// Device registry: binds transient hardware ids to stable player slots.
//
// Characteristics:
//   - deviceId → slot is injective; a device keeps its slot until Reset or
//     until a capacity change drops its slot.
//   - Slots are handed out lowest-first below the current capacity.
//   - Reachability (ONLINE/OFFLINE) is tracked per device, assigned or not.
//   - Not safe for concurrent use; the controller owns it.

package devices

import (
	"errors"
	"sort"
	"strings"
)

// Status is a device's reachability as reported on the bus.
type Status string

const (
	Online  Status = "ONLINE"
	Offline Status = "OFFLINE"
)

var (
	ErrNoFreeSlot = errors.New("no free player slot")
	ErrEmptyID    = errors.New("empty device id")
)

// ParseStatus accepts ONLINE/OFFLINE in any case.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case Online:
		return Online, true
	case Offline:
		return Offline, true
	}
	return "", false
}

// Device is a snapshot of one registry entry.
type Device struct {
	ID       string `json:"id"`
	Slot     int    `json:"slot"` // -1 when unassigned
	Status   Status `json:"status"`
	Assigned bool   `json:"assigned"`
}

// Registry maps device ids to slots.
type Registry struct {
	capacity int
	slots    map[string]int
	status   map[string]Status
}

// NewRegistry constructs a registry handing out slots [0, capacity).
func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		slots:    make(map[string]int),
		status:   make(map[string]Status),
	}
}

// Capacity is the current number of assignable slots.
func (r *Registry) Capacity() int { return r.capacity }

// SetCapacity changes the number of assignable slots (the game's player count).
// Assignments at or above n are released and their ids returned, sorted; the
// devices stay known by reachability and may register again.
func (r *Registry) SetCapacity(n int) []string {
	r.capacity = n
	var released []string
	for id, s := range r.slots {
		if s >= n {
			delete(r.slots, id)
			released = append(released, id)
		}
	}
	sort.Strings(released)
	return released
}

// Register assigns a slot to id. Registering an assigned device returns its
// existing slot with fresh=false.
func (r *Registry) Register(id string) (slot int, fresh bool, err error) {
	if id == "" {
		return -1, false, ErrEmptyID
	}
	if s, ok := r.slots[id]; ok {
		return s, false, nil
	}
	taken := make(map[int]bool, len(r.slots))
	for _, s := range r.slots {
		taken[s] = true
	}
	for s := 0; s < r.capacity; s++ {
		if !taken[s] {
			r.slots[id] = s
			if _, ok := r.status[id]; !ok {
				r.status[id] = Online
			}
			return s, true, nil
		}
	}
	return -1, false, ErrNoFreeSlot
}

// UpdateStatus records id's reachability. It returns the device's slot and
// whether the device is assigned.
func (r *Registry) UpdateStatus(id string, st Status) (slot int, assigned bool) {
	r.status[id] = st
	s, ok := r.slots[id]
	if !ok {
		return -1, false
	}
	return s, true
}

// SlotOf returns id's slot.
func (r *Registry) SlotOf(id string) (int, bool) {
	s, ok := r.slots[id]
	return s, ok
}

// DeviceFor returns the device assigned to slot.
func (r *Registry) DeviceFor(slot int) (string, bool) {
	for id, s := range r.slots {
		if s == slot {
			return id, true
		}
	}
	return "", false
}

// Online reports whether slot has an assigned device that is ONLINE.
func (r *Registry) Online(slot int) bool {
	id, ok := r.DeviceFor(slot)
	return ok && r.status[id] == Online
}

// ConnectedCount is the number of assigned slots below capacity whose device is ONLINE.
func (r *Registry) ConnectedCount() int {
	n := 0
	for id, s := range r.slots {
		if s < r.capacity && r.status[id] == Online {
			n++
		}
	}
	return n
}

// Reset clears every assignment. Reachability is forgotten too.
func (r *Registry) Reset() {
	r.slots = make(map[string]int)
	r.status = make(map[string]Status)
}

// Devices returns every known device, assigned ones first by slot.
func (r *Registry) Devices() []Device {
	out := make([]Device, 0, len(r.status))
	for id, st := range r.status {
		d := Device{ID: id, Slot: -1, Status: st}
		if s, ok := r.slots[id]; ok {
			d.Slot, d.Assigned = s, true
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Assigned != b.Assigned {
			return a.Assigned
		}
		if a.Slot != b.Slot {
			return a.Slot < b.Slot
		}
		return a.ID < b.ID
	})
	return out
}
