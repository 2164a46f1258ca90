package airpods

// Side identifies which physical earbud transmitted a packet.
type Side uint8

const (
	SideLeft Side = iota
	SideRight
)

// Opposite returns the other earbud.
func (s Side) Opposite() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

func (s Side) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

// Model identifies the accessory model carried in the broadcast.
type Model uint8

const (
	ModelUnknown Model = iota
	ModelAirPods1
	ModelAirPods2
	ModelAirPods3
	ModelAirPodsPro
	ModelAirPodsPro2
	ModelAirPodsMax
	ModelPowerbeatsPro
)

var modelNames = map[Model]string{
	ModelUnknown:       "Unknown",
	ModelAirPods1:      "AirPods",
	ModelAirPods2:      "AirPods 2",
	ModelAirPods3:      "AirPods 3",
	ModelAirPodsPro:    "AirPods Pro",
	ModelAirPodsPro2:   "AirPods Pro 2",
	ModelAirPodsMax:    "AirPods Max",
	ModelPowerbeatsPro: "Powerbeats Pro",
}

func (m Model) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return "Unknown"
}

// Pod is the status of a single earbud as reported by a packet.
type Pod struct {
	Battery    Battery
	IsCharging bool
	IsInEar    bool
}

// Pods groups the two earbuds.
type Pods struct {
	Left  Pod
	Right Pod
}

// CaseBox is the status of the charging case.
type CaseBox struct {
	Battery          Battery
	IsCharging       bool
	IsBothPodsInCase bool
	IsLidOpened      bool
}

// AdvState is the decoded status carried by a single broadcast packet.
// Either earbud's packet reports the full pair + case status.
type AdvState struct {
	Model   Model
	Side    Side
	Pods    Pods
	CaseBox CaseBox
}

// State is the canonical merged snapshot exposed to collaborators.
// Equality is structural and is used to suppress duplicate events.
type State struct {
	Model       Model
	Pods        Pods
	CaseBox     CaseBox
	DisplayName string
}

// UpdateEvent describes a material change of the canonical state.
// Previous is nil only for the first accepted state after a reset.
type UpdateEvent struct {
	Previous *State
	Current  State
}
