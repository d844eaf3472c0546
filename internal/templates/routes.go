package templates

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/routines"
)

// RoutineTemplate is a canned routine. Clients copy the schedule and action
// into a routine create request and supply their own player IDs.
type RoutineTemplate struct {
	TemplateID  string          `json:"template_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Icon        string          `json:"icon,omitempty"`
	Schedule    string          `json:"schedule"`
	Action      routines.Action `json:"action"`
	Tags        []string        `json:"tags,omitempty"`
}

// Service provides the built-in routine templates.
type Service struct {
	templates []RoutineTemplate
}

// NewService creates a new templates service with embedded templates.
func NewService() *Service {
	return &Service{
		templates: getEmbeddedTemplates(),
	}
}

// RegisterRoutes wires template routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/routine-templates", api.Handler(listTemplates(service)))
	router.Method(http.MethodGet, "/v1/routine-templates/{template_id}", api.Handler(getTemplate(service)))
}

// listTemplates handles GET /v1/routine-templates
func listTemplates(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		matched := service.filtered(r.URL.Query().Get("category"))

		formatted := make([]any, 0, len(matched))
		for i := range matched {
			formatted = append(formatted, formatTemplate(&matched[i]))
		}

		// Templates are a small fixed list, so pagination is not needed.
		return api.WriteList(w, "/v1/routine-templates", formatted, false)
	}
}

// getTemplate handles GET /v1/routine-templates/{template_id}
func getTemplate(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		templateID := chi.URLParam(r, "template_id")

		tmpl := service.find(templateID)
		if tmpl == nil {
			return apperrors.NewNotFoundError("Template not found", map[string]any{
				"template_id": templateID,
			})
		}

		return api.WriteResource(w, http.StatusOK, formatTemplate(tmpl))
	}
}

// filtered returns the templates in the given category, or all of them when
// category is empty.
func (s *Service) filtered(category string) []RoutineTemplate {
	if category == "" {
		return s.templates
	}
	matched := make([]RoutineTemplate, 0)
	for _, t := range s.templates {
		if t.Category == category {
			matched = append(matched, t)
		}
	}
	return matched
}

// find returns the template with the given ID, nil when absent.
func (s *Service) find(templateID string) *RoutineTemplate {
	for i := range s.templates {
		if s.templates[i].TemplateID == templateID {
			return &s.templates[i]
		}
	}
	return nil
}

// formatTemplate formats a RoutineTemplate for JSON response.
func formatTemplate(t *RoutineTemplate) map[string]any {
	result := map[string]any{
		"object":      "routine_template",
		"template_id": t.TemplateID,
		"name":        t.Name,
		"description": t.Description,
		"category":    t.Category,
		"schedule":    t.Schedule,
		"action":      t.Action,
	}

	if t.Icon != "" {
		result["icon"] = t.Icon
	}
	if len(t.Tags) > 0 {
		result["tags"] = t.Tags
	}

	return result
}

// getEmbeddedTemplates returns the built-in routine templates. Schedules are
// five-field cron expressions, the same format the routines service accepts.
func getEmbeddedTemplates() []RoutineTemplate {
	return []RoutineTemplate{
		{
			TemplateID:  "weekday-wake-up",
			Name:        "Weekday Wake Up",
			Description: "Play your first HEOS favorite on weekday mornings",
			Category:    "morning",
			Icon:        "sunrise",
			Schedule:    "30 6 * * 1-5",
			Action:      routines.Action{Type: routines.ActionPlayPreset, Preset: intptr(1)},
			Tags:        []string{"wake", "morning", "preset"},
		},
		{
			TemplateID:  "weekend-morning",
			Name:        "Weekend Morning",
			Description: "Ease into the weekend with a favorite station",
			Category:    "morning",
			Icon:        "sun",
			Schedule:    "0 9 * * 6,0",
			Action:      routines.Action{Type: routines.ActionPlayPreset, Preset: intptr(2)},
			Tags:        []string{"weekend", "morning"},
		},
		{
			TemplateID:  "evening-wind-down",
			Name:        "Evening Wind Down",
			Description: "Drop the volume for the rest of the night",
			Category:    "evening",
			Icon:        "moon",
			Schedule:    "0 21 * * *",
			Action:      routines.Action{Type: routines.ActionSetVolume, Level: intptr(15)},
			Tags:        []string{"evening", "quiet"},
		},
		{
			TemplateID:  "midnight-stop",
			Name:        "Midnight Stop",
			Description: "Stop playback on the selected players at midnight",
			Category:    "evening",
			Icon:        "power",
			Schedule:    "0 0 * * *",
			Action:      routines.Action{Type: routines.ActionSetState, State: strptr("stop")},
			Tags:        []string{"night", "stop"},
		},
		{
			TemplateID:  "tv-evening",
			Name:        "TV Evening",
			Description: "Switch the living room to TV audio for the evening",
			Category:    "entertainment",
			Icon:        "tv",
			Schedule:    "0 19 * * *",
			Action:      routines.Action{Type: routines.ActionPlayInput, Input: strptr("inputs/tvaudio")},
			Tags:        []string{"tv", "input"},
		},
		{
			TemplateID:  "dinner-party",
			Name:        "Dinner Party",
			Description: "Start a favorite playlist for Friday dinner",
			Category:    "entertainment",
			Icon:        "wine",
			Schedule:    "0 18 * * 5",
			Action:      routines.Action{Type: routines.ActionPlayPreset, Preset: intptr(3)},
			Tags:        []string{"party", "dinner"},
		},
		{
			TemplateID:  "kids-bedtime",
			Name:        "Kids Bedtime",
			Description: "Play the lullaby favorite in the kids room",
			Category:    "kids",
			Icon:        "star",
			Schedule:    "30 19 * * *",
			Action:      routines.Action{Type: routines.ActionPlayPreset, Preset: intptr(4)},
			Tags:        []string{"kids", "bedtime", "lullaby"},
		},
	}
}

func intptr(v int) *int { return &v }

func strptr(v string) *string { return &v }
