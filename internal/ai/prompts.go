// prompts.go - Prompts sent to the cloud-vision model

package ai

// transcriptionPrompt asks for a faithful reading of the screen, nothing more.
const transcriptionPrompt = `You are reading a photo of a golf launch monitor screen.
Transcribe every visible label and number exactly as shown.
- Keep each label next to its value and unit, one metric per line (e.g. "Club Speed 95.2 mph").
- Keep signs and L/R direction markers.
- Do not guess values that are not legible and do not add commentary.
Return plain text only.`

// structuredPrompt pairs with metricListSchema.
const structuredPrompt = `You are reading a photo of a golf launch monitor screen.
Return a JSON array with one object per metric shown on the screen:
  {"title": label as shown, "value": number as shown including sign, "descriptor": unit and any L/R marker}
Use an empty descriptor when no unit is shown. Skip metrics whose value is not legible.
Return only the JSON array.`
