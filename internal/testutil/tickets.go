package testutil

// FlatTicketJSON is a minimal flat-layout ticket with one email and one
// phone number in the description. Sanitizing it with structural matchers
// alone yields FlatTicketSanitized.
const FlatTicketJSON = `{
  "id": 101,
  "description": "Contact john.smith@acme.com or call (415) 555-0123.",
  "comments": [
    {"body": "Will do.", "public": true}
  ]
}`

// FlatTicketSanitized is FlatTicketJSON after sanitization.
const FlatTicketSanitized = "Contact [EMAIL] or call [PHONE]."

// ZendeskTicketJSON is a minimal Zendesk-export ticket: a ticket object
// with requester identity plus a top-level comments wrapper.
const ZendeskTicketJSON = `{
  "ticket": {
    "id": 202,
    "subject": "VPN outage",
    "description": "Gateway 10.0.0.0/24 is unreachable.",
    "requester": {"name": "Dana Cruz", "email": "dana.cruz@example.com"}
  },
  "comments": {
    "comments": [
      {"body": "Rebooted the gateway.", "public": false}
    ],
    "count": 1
  }
}`
