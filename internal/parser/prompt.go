package parser

import (
	"fmt"
	"strings"
)

// SystemPrompt is sent as the system message on every oracle call.
const SystemPrompt = "You convert CRM requests into a single JSON object. Reply with JSON only, no prose and no markdown."

const promptTemplate = `Translate the request below into one JSON object with exactly these keys:

  "tool":    always "%[1]s"
  "action":  one of "create", "update", "delete"
  "object":  always "%[2]s"
  "filters": object identifying an existing record, e.g. {"Name": "<full name>"}
  "fields":  object of values to set

Rules:
  create  -> "fields" must include "Name" with the person's full name; omit "filters"
  update  -> "filters" must include "Name"; "fields" lists only what changes
  delete  -> "filters" must include "Name"; omit "fields"
  Use plain field labels such as Name, Email, Status, Organization, Phone, Title.
  Values are strings, numbers or booleans. Never nest objects.

Request: %[3]q`

// Prompt renders the instruction prompt for one user request.
func Prompt(tool, object, text string) string {
	return fmt.Sprintf(promptTemplate, tool, object, strings.TrimSpace(text))
}
