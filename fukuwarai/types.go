package fukuwarai

import "time"

// PartType 部位カテゴリ: 0-HAIR 1-EYEBROWS 2-EYES 3-NOSE 4-MOUTH 5-ACCESSORY
type PartType byte

const (
	PartTypeHair      PartType = 0
	PartTypeEyebrows  PartType = 1
	PartTypeEyes      PartType = 2
	PartTypeNose      PartType = 3
	PartTypeMouth     PartType = 4
	PartTypeAccessory PartType = 5
)

// PartTypeCount is the size of the closed category set. A face is
// complete when exactly this many distinct categories are placed.
const PartTypeCount = 6

var PartTypeDictionary = map[PartType]string{
	PartTypeHair:      "hair",
	PartTypeEyebrows:  "eyebrows",
	PartTypeEyes:      "eyes",
	PartTypeNose:      "nose",
	PartTypeMouth:     "mouth",
	PartTypeAccessory: "accessory",
}

func (p PartType) String() string {
	if s, ok := PartTypeDictionary[p]; ok {
		return s
	}
	return "unknown"
}

func (p PartType) Valid() bool {
	_, ok := PartTypeDictionary[p]
	return ok
}

// ParsePartType converts the wire/storage form back to a PartType.
func ParsePartType(s string) (PartType, bool) {
	for p, name := range PartTypeDictionary {
		if name == s {
			return p, true
		}
	}
	return 0, false
}

// AllPartTypes returns the category set in canonical order.
func AllPartTypes() []PartType {
	return []PartType{
		PartTypeHair,
		PartTypeEyebrows,
		PartTypeEyes,
		PartTypeNose,
		PartTypeMouth,
		PartTypeAccessory,
	}
}

// RoomStatus 部屋の状態
type RoomStatus byte

const (
	RoomStatusWaiting  RoomStatus = 0
	RoomStatusPlaying  RoomStatus = 1
	RoomStatusFinished RoomStatus = 2
)

var RoomStatusDictionary = map[RoomStatus]string{
	RoomStatusWaiting:  "waiting",
	RoomStatusPlaying:  "playing",
	RoomStatusFinished: "finished",
}

func (s RoomStatus) String() string {
	if name, ok := RoomStatusDictionary[s]; ok {
		return name
	}
	return "unknown"
}

func ParseRoomStatus(s string) (RoomStatus, bool) {
	for st, name := range RoomStatusDictionary {
		if name == s {
			return st, true
		}
	}
	return 0, false
}

// Room is one collaborative session. Version is bumped by the store on
// every room-row write; session folds use it to reject stale updates.
type Room struct {
	ID                  string
	Status              RoomStatus
	CurrentTurnPlayerID string
	TemplateID          string
	Version             int64
	CreatedAt           time.Time
}

// Player is one seat within a room, totally ordered by TurnOrder.
type Player struct {
	ID          string
	RoomID      string
	DisplayName string
	TurnOrder   int
	AccountID   uint64
	CreatedAt   time.Time
}

// Placement is one committed part. Append-only: never mutated or
// deleted once written.
type Placement struct {
	ID       string
	RoomID   string
	PlayerID string
	PartType PartType
	PartID   string
	X        float64
	Y        float64
	Scale    float64
	Rotation float64
	PlacedAt time.Time
}

// Template is the read-only face outline a room draws on.
type Template struct {
	ID        string
	Name      string
	ImageURL  string
	CreatedAt time.Time
}
