package attendance

import "sort"

// Summary is the attendance percentage of one student over every known event.
type Summary struct {
	StudentID  int64 `json:"student_id"`
	Present    int   `json:"present"`
	Total      int   `json:"total"`
	Percentage int   `json:"attendance_percentage"`
}

// Percentage rounds 100*present/total half up using integer arithmetic only.
// Both the seed path and the live recompute path go through this function.
func Percentage(present, total int) int {
	if total <= 0 {
		return 0
	}
	if present < 0 {
		present = 0
	}
	if present > total {
		present = total
	}
	return (200*present + total) / (2 * total)
}

// Aggregate groups events by student and returns one summary per student that
// has at least one event, ordered by student_id. Students without events are
// not part of the output and get their default downstream.
//
// The input is treated as a complete snapshot; nothing is carried between calls.
func Aggregate(events []Event) []Summary {
	byStudent := make(map[int64]*Summary)
	for _, e := range events {
		s, ok := byStudent[e.StudentID]
		if !ok {
			s = &Summary{StudentID: e.StudentID}
			byStudent[e.StudentID] = s
		}
		s.Total++
		if e.Status.IsPresent() {
			s.Present++
		}
	}

	out := make([]Summary, 0, len(byStudent))
	for _, s := range byStudent {
		s.Percentage = Percentage(s.Present, s.Total)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

// Index maps student_id to its summary.
func Index(summaries []Summary) map[int64]Summary {
	m := make(map[int64]Summary, len(summaries))
	for _, s := range summaries {
		m[s.StudentID] = s
	}
	return m
}
