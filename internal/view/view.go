package view

import (
	"fmt"
	"time"

	"semcal/internal/date"
	appLog "semcal/internal/log"
	"semcal/internal/model"
	"semcal/internal/recur"
)

// Builder merges stored task records into the occurrences shown for a date
// range.
type Builder struct {
	Expander recur.Expander
}

// ForRange builds the view of tasks for [start, end] with the default
// Builder.
func ForRange(tasks []model.Task, start, end time.Time) ([]model.Task, error) {
	return Builder{}.ForRange(tasks, start, end)
}

// ForRange returns every occurrence dated within [start, end]:
//
//   - Templates are expanded over their whole date range.
//   - A stored instance replaces the generated occurrence of the same
//     (template, occurrence date) slot, wherever it sits in tasks. Skipped
//     instances hide their slot.
//   - Instances whose template is not in tasks, and standalone tasks, are
//     kept as they are.
//   - Records with a "<template id>-YYYY-MM-DD" id and no TemplateID are
//     linked to that template first (model.UpgradeLegacy); without the
//     template they are dated records, never templates.
//
// The result has unique ids; on a collision the first record wins.
func (b Builder) ForRange(tasks []model.Task, start, end time.Time) ([]model.Task, error) {
	start, end = date.Truncate(start), date.Truncate(end)
	if end.Before(start) {
		return nil, fmt.Errorf("view: range end %s before start %s", date.Format(end), date.Format(start))
	}

	var templates, instances, standalone []model.Task
	templateIDs := make(map[string]struct{})
	for _, t := range model.UpgradeLegacy(tasks) {
		switch t.Kind() {
		case model.KindTemplate:
			templates = append(templates, t)
			templateIDs[t.ID] = struct{}{}
		case model.KindInstance:
			instances = append(instances, t)
		default:
			standalone = append(standalone, t)
		}
	}

	overlay := make(map[model.SlotKey]model.Task)
	var orphans []model.Task
	for _, inst := range instances {
		if _, ok := templateIDs[inst.TemplateID]; !ok {
			orphans = append(orphans, inst)
			continue
		}
		if _, dup := overlay[inst.Key()]; dup {
			appLog.Warn("view: duplicate stored occurrence", "template_id", inst.TemplateID, "date", inst.SlotDate(), "id", inst.ID)
			continue
		}
		overlay[inst.Key()] = inst
	}

	all := make([]model.Task, 0, len(tasks))
	used := make(map[model.SlotKey]struct{}, len(overlay))
	for _, tpl := range templates {
		res, err := b.Expander.Expand(tpl)
		if err != nil {
			return nil, fmt.Errorf("view: expand %s: %w", tpl.ID, err)
		}
		for _, occ := range res.Tasks {
			if occ.TemplateID == "" {
				all = append(all, occ)
				continue
			}
			stored, ok := overlay[occ.Key()]
			if !ok {
				all = append(all, occ)
				continue
			}
			used[occ.Key()] = struct{}{}
			if !stored.Skipped {
				all = append(all, stored)
			}
		}
	}

	// Stored edits whose slot the template no longer generates stay visible
	// on their own date.
	for _, inst := range instances {
		if _, ok := used[inst.Key()]; ok {
			continue
		}
		if _, ok := templateIDs[inst.TemplateID]; !ok || inst.Skipped {
			continue
		}
		if overlay[inst.Key()].ID != inst.ID {
			continue
		}
		all = append(all, inst)
	}
	for _, t := range orphans {
		if !t.Skipped {
			all = append(all, t)
		}
	}
	all = append(all, standalone...)

	out := make([]model.Task, 0, len(all))
	seen := make(map[string]struct{}, len(all))
	for _, t := range all {
		d, err := date.Parse(t.Date)
		if err != nil {
			return nil, fmt.Errorf("view: task %s: %w", t.ID, err)
		}
		if !date.Within(d, start, end) {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// ForWeek returns the view of the Monday-to-Sunday week containing day.
func ForWeek(tasks []model.Task, day time.Time) ([]model.Task, error) {
	return ForRange(tasks, date.StartOfWeek(day), date.EndOfWeek(day))
}

// ForDay returns the view of a single day.
func ForDay(tasks []model.Task, day time.Time) ([]model.Task, error) {
	return ForRange(tasks, day, day)
}
