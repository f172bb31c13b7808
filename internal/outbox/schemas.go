package outbox

import "example.com/agentsession/internal/events"

const alertRequestedSchema = `{
  "type": "object",
  "title": "AlertRequested",
  "properties": {
    "alert_id": {"type": "string"},
    "alert_type": {"type": "string"},
    "agent_id": {"type": "string"},
    "supervisor_id": {"type": "string"},
    "title": {"type": "string"},
    "description": {"type": "string"},
    "details": {"type": "object", "additionalProperties": {"type": "string"}},
    "requested_at": {"type": "string", "format": "date-time"}
  },
  "required": ["alert_id", "alert_type", "agent_id", "supervisor_id", "title", "description", "requested_at"],
  "additionalProperties": false
}`

const attendanceMarkedSchema = `{
  "type": "object",
  "title": "AttendanceMarked",
  "properties": {
    "agent_id": {"type": "string"},
    "business_date": {"type": "string", "format": "date"},
    "working": {"type": "boolean"},
    "at": {"type": "string", "format": "date-time"},
    "reason_label": {"type": "string"}
  },
  "required": ["agent_id", "business_date", "working", "at"],
  "additionalProperties": false
}`

const sessionUpdatedSchema = `{
  "type": "object",
  "title": "SessionUpdated",
  "properties": {
    "session_id": {"type": "string"},
    "agent_id": {"type": "string"},
    "business_date": {"type": "string", "format": "date"},
    "state": {"type": "string"},
    "current_activity": {"type": "string"},
    "missed_confirmations": {"type": "integer"},
    "transition": {"type": "string"},
    "updated_at": {"type": "string", "format": "date-time"}
  },
  "required": ["session_id", "agent_id", "business_date", "state", "missed_confirmations", "transition", "updated_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeAlertRequested:   {Schema: alertRequestedSchema},
	events.TypeAttendanceMarked: {Schema: attendanceMarkedSchema},
	events.TypeSessionUpdated:   {Schema: sessionUpdatedSchema},
}
