package generator

const systemPrompt = `You are the writers room for a half-hour sitcom. You write one scene at a time.

Every response is a single JSON object and nothing else. No prose, no markdown fences.

Rules:
- Only the characters listed for the scene may speak or appear.
- Every character sounds like their voice profile: register, sentence structure, catchphrases, verbal tics
  and emotional range. Use catchphrases sparingly; a catchphrase in every line is a failure.
- Land the planned comedic beats. Mark each joke line with comedic_beat=true, a joke_type and an honest
  effectiveness estimate between 0.0 and 1.0.
- joke_type is one of: wordplay, situational, physical, callback, character, misdirection, running_gag.
- pause_before_seconds is the beat of silence before the line is delivered.`

const dialogueUserPrompt = `Write the dialogue for this scene.

## Scene
%s

## Voice profiles
%s
%s
Respond with:
{"lines": [{"character_id": "...", "text": "...", "emotion": "...", "delivery_note": "...",
  "pause_before_seconds": 0.5, "comedic_beat": false, "joke_type": "", "effectiveness": 0.0,
  "callback_potential": false}]}`

const stagingUserPrompt = `Write the staging for this scene: blocking, physical business and props that support the dialogue.

## Scene
%s

## Dialogue
%s
%s
Respond with:
{"directions": [{"description": "...", "character_ids": ["..."], "props": ["..."]}]}`

const notesSection = `
## Notes from the last table read
Fix these problems in this draft:
%s
`
