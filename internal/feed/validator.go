package feed

import (
	"context"
	"fmt"

	"github.com/feedscout/feedscout/internal/models"
	"github.com/feedscout/feedscout/internal/store"
)

// Analysis is the outcome of validating a candidate message set. When Valid,
// SourceRoom is the single room the derived room will point back to.
type Analysis struct {
	Valid      bool
	SourceRoom *models.Room
	Reason     string
}

func invalid(reason string) Analysis {
	return Analysis{Valid: false, Reason: reason}
}

// Analyze decides whether a set of messages can be combined into one derived
// room and which room is the source. Messages must carry their Room loaded.
// Thread messages resolve to the room containing the thread's parent message;
// all messages must resolve to the same source. When scannedRoom is non-nil,
// a resolved source that differs from it is rejected.
func Analyze(ctx context.Context, s store.Store, messages []*models.Message, scannedRoom *models.Room) (Analysis, error) {
	if len(messages) == 0 {
		return invalid("no messages provided"), nil
	}

	seen := make(map[int64]bool)
	var rooms []*models.Room
	for _, msg := range messages {
		if msg.Room == nil {
			return invalid("messages must have associated rooms"), nil
		}
		if !seen[msg.Room.ID] {
			seen[msg.Room.ID] = true
			rooms = append(rooms, msg.Room)
		}
	}

	var threadRooms, plainRooms []*models.Room
	for _, room := range rooms {
		if room.IsThread() {
			threadRooms = append(threadRooms, room)
		} else {
			plainRooms = append(plainRooms, room)
		}
	}

	var analysis Analysis
	if len(threadRooms) == 0 {
		analysis = analyzePlainRooms(plainRooms)
	} else {
		var err error
		analysis, err = analyzeThreadRooms(ctx, s, threadRooms, plainRooms)
		if err != nil {
			return Analysis{}, err
		}
	}
	if !analysis.Valid {
		return analysis, nil
	}

	if scannedRoom != nil && analysis.SourceRoom != nil && analysis.SourceRoom.ID != scannedRoom.ID {
		return Analysis{
			Valid:      false,
			SourceRoom: analysis.SourceRoom,
			Reason:     fmt.Sprintf("messages belong to room %d but scanning room %d", analysis.SourceRoom.ID, scannedRoom.ID),
		}, nil
	}

	return analysis, nil
}

func analyzePlainRooms(rooms []*models.Room) Analysis {
	if len(rooms) > 1 {
		return invalid("messages must be from the same room or related threads")
	}
	return Analysis{Valid: true, SourceRoom: rooms[0]}
}

func analyzeThreadRooms(ctx context.Context, s store.Store, threadRooms, plainRooms []*models.Room) (Analysis, error) {
	var parent *models.Room
	for _, threadRoom := range threadRooms {
		p, err := s.ParentRoom(ctx, threadRoom)
		if err == store.ErrNotFound {
			return invalid("thread rooms have no parent message, cannot determine source room"), nil
		}
		if err != nil {
			return Analysis{}, err
		}
		if parent == nil {
			parent = p
			continue
		}
		if p.ID != parent.ID {
			return invalid("messages from threads with different parent rooms cannot be combined"), nil
		}
	}
	if parent == nil {
		return invalid("thread rooms have no parent message, cannot determine source room"), nil
	}

	for _, room := range plainRooms {
		if room.ID != parent.ID {
			return invalid(fmt.Sprintf("messages from room %d do not match parent room %d", room.ID, parent.ID)), nil
		}
	}

	return Analysis{Valid: true, SourceRoom: parent}, nil
}
