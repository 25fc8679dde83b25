package scheduler

import "github.com/campusops/timetable-engine/internal/domain"

// MinCapacityRatio is the minimum fraction of a block's student count a
// candidate room's capacity must cover to be considered suitable.
const MinCapacityRatio = 0.8

// SuitableRooms returns every room in the pool whose type matches the
// block's requirement and whose capacity covers at least
// MinCapacityRatio of the block's student count. For a block requiring a
// lab, it additionally restricts to the block's preferred_rooms when the
// block names any, and otherwise excludes labs not usable for
// non-specialist courses — the same restriction checkLabRequirements
// enforces at placement time, applied here so the priority ordering and
// gap/slot accounting in the caller see the real candidate set. It is a
// pure function of the block and the room pool — it does not consult
// current assignments, since room type and capacity never change
// mid-run.
func SuitableRooms(block domain.Block, pool []domain.Room) []domain.Room {
	preferred := make(map[string]bool, len(block.PreferredRooms))
	for _, id := range block.PreferredRooms {
		preferred[id] = true
	}

	var suitable []domain.Room
	for _, room := range pool {
		if room.Type() != block.RequiredRoomType {
			continue
		}
		if float64(room.Capacity()) < MinCapacityRatio*float64(block.StudentCount) {
			continue
		}
		if room.Type() == domain.RoomTypeLab {
			lab, ok := room.(*domain.Lab)
			if !ok {
				continue
			}
			if len(preferred) > 0 {
				if !preferred[lab.ID()] {
					continue
				}
			} else if !lab.UsedInNonSpecialistCourses {
				continue
			}
		}
		suitable = append(suitable, room)
	}
	return suitable
}

// AvailableSlots returns every slot the room is open during that the
// block's staff member prefers, excluding any slot already occupied by
// an existing assignment in that room or by the block's staff member
// elsewhere.
func AvailableSlots(block domain.Block, room domain.Room, assignments map[string]domain.Assignment, state *State) []domain.TimeSlot {
	roomTaken := make(map[domain.TimeSlot]bool, len(assignments))
	staffTaken := make(map[domain.TimeSlot]bool, len(assignments))
	for _, a := range assignments {
		if a.RoomID == room.ID() {
			roomTaken[a.Slot] = true
		}
		if peer, ok := state.Block(a.BlockID); ok && peer.StaffID == block.StaffID {
			staffTaken[a.Slot] = true
		}
	}

	var available []domain.TimeSlot
	for _, slot := range room.Availability() {
		if !block.PrefersSlot(slot) {
			continue
		}
		if roomTaken[slot] || staffTaken[slot] {
			continue
		}
		available = append(available, slot)
	}
	return available
}
