package descriptions

import "sort"

// Tool descriptions with practical examples and use cases

const (
	// Session Tools
	SignOpenTemplateDescription = `Open a signing template and start a new signing session.

**When to use:** First step of every signing workflow. Loads a field layout (JSON or YAML) together with the document it applies to, or a bare PDF with no fields.

**Why it's useful:** Returns the session ID plus every field, its type, page and whether it is required, so you know exactly what has to be filled before the document can be finalized.

**Examples:**
• Open a template file: "Open lease.json from the templates directory"
• Open an inline template: "Start a session with this template JSON that references https://example.com/nda.pdf"
• Open a bare PDF: "Open contract.pdf so I can finalize a copy"

**Common workflows:**
1. Open template → Adopt signature → Fill fields → Finalize
2. Open template → Check status → Fill the missing required fields

**Best practices:** Prefer pdfBase64 inside the template when the document is private; pdfUrl documents are fetched once and cached.`

	SignAdoptSignatureDescription = `Adopt the signature used for every signature, initials and stamp field in the session.

**When to use:** Before filling signature-like fields with mode "adopted-signature".

**Why it's useful:** One adoption covers every signature field. A drawn signature (pointer strokes) wins over an uploaded image, and both win over the typed name rendered in a signature font.

**Examples:**
• Typed: "Adopt 'Jane Q. Roe' in Go Italic, navy ink"
• Drawn: "Adopt these strokes captured on a 600x200 canvas"
• Uploaded: "Adopt this scanned signature PNG"

**Best practices:** Initials default to the first letter of each word of the name. Uploaded images are limited in size and downscaled when very large.`

	SignFillFieldDescription = `Fill one field with a validated, normalized value.

**When to use:** For every non-radio field. Modes: "text" (default), "check" (checkboxes), "typed-signature", "adopted-signature".

**Why it's useful:** Values are validated and normalized per field type: dates become MM/DD/YYYY, phone numbers (XXX) XXX-XXXX, states two-letter codes, ages 0-120. A rejected value returns a message and leaves the session unchanged.

**Examples:**
• "Fill field 'start_date' with 3/5/24" → 03/05/2024
• "Fill field 'phone' with 555.123.4567" → (555) 123-4567
• "Check 'agree_terms'" (mode check), "uncheck it" (mode check, value "off")
• "Sign 'tenant_sig' with the adopted signature"

**Best practices:** Surface the rejection message to the person filling the form and ask again.`

	SignSelectRadioDescription = `Select one option of a radio group.

**When to use:** For radio fields. Selecting an option clears every other option of the same group in one step.

**Examples:**
• "Select 'plan_premium'" → the previously selected plan option is cleared

**Best practices:** A group cannot be returned to "nothing selected"; select another option instead.`

	SignClearFieldDescription = `Remove the content of a field.

**When to use:** To undo a fill. Radio options cannot be cleared, only replaced by selecting another option.`

	SignSetPageImageDescription = `Provide the rendered bitmap of a page.

**When to use:** When the source document cannot be edited directly (status reports parseable=false) the signed document is rebuilt from page bitmaps. Supply one PNG or JPEG per page, rendered at 'scale' pixels per point.

**Best practices:** Provide every page, starting at page 1, with no gaps.`

	SignStatusDescription = `Get the current state of a signing session.

**When to use:** To see which fields are filled, which required fields are still missing, the radio selections, whether a signature is adopted and whether the document can be edited directly.`

	SignPreviewFieldDescription = `Render one filled field exactly as it will be embedded in the signed document.

**When to use:** To show the person signing what a signature or value will look like before finalizing.

**Why it's useful:** Uses the same rendering path as finalization, including font auto-fitting and the PDF-space rectangle the content will occupy.`

	SignFinalizeDescription = `Compose the signed document and deliver it.

**When to use:** After every required field is filled. Fails with the list of missing required fields otherwise.

**Why it's useful:** The original document is stamped in place when possible; otherwise it is rebuilt from the page bitmaps. The output is verified with an independent reader before it is delivered as <name>-signed.pdf through the configured channels (download, submit, manual save).

**Best practices:** Set include_document to receive the signed PDF as base64 in the response.`

	SignCloseSessionDescription = `Discard a signing session and everything it holds, including the adopted signature.`

	SignServerInfoDescription = `Get server status, available tools and signing capabilities.

**When to use:** First call in a new conversation to discover templates in the configured directory, supported field types, fill modes, signature fonts and delivery channels.`
)

// ToolDescriptions maps tool names to their comprehensive descriptions
var ToolDescriptions = map[string]string{
	"sign_open_template":   SignOpenTemplateDescription,
	"sign_adopt_signature": SignAdoptSignatureDescription,
	"sign_fill_field":      SignFillFieldDescription,
	"sign_select_radio":    SignSelectRadioDescription,
	"sign_clear_field":     SignClearFieldDescription,
	"sign_set_page_image":  SignSetPageImageDescription,
	"sign_status":          SignStatusDescription,
	"sign_preview_field":   SignPreviewFieldDescription,
	"sign_finalize":        SignFinalizeDescription,
	"sign_close_session":   SignCloseSessionDescription,
	"sign_server_info":     SignServerInfoDescription,
}

// GetToolDescription returns the comprehensive description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the sorted names of all tools
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
