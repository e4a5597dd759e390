package app

// Reply keyboard labels.
const (
	btnMainMenu = "🏠 Main menu"
	btnForms    = "📝 Forms"
	btnSettings = "⚙️ Settings"
	btnCancel   = "❌ Cancel"
)

// Inline callback keys. Payloads carry the template index or post id.
const (
	cbFormStart   = "form_start"
	cbPostApprove = "post_approve"
	cbPostReject  = "post_reject"
	cbTplToggle   = "template_toggle"
	cbAddAdmin    = "admin_add"
	cbRemoveAdmin = "admin_remove"
	cbAddMod      = "moderator_add"
	cbRemoveMod   = "moderator_remove"
	cbSetChannel  = "channel_set"
	cbSetQuorum   = "quorum_set"
	cbPending     = "posts_pending"
)

const (
	textMainMenu        = "Main menu."
	textForms           = "Choose a form to fill out:"
	textNoForms         = "No forms are available right now."
	textCancelled       = "Form cancelled."
	textSettingsMenu    = "Bot settings."
	textNoPending       = "No posts are waiting for review."
	textAlreadyResolved = "This post was already resolved by another admin."
	textVoteRecorded    = "Vote recorded."
	textPostApproved    = "Post approved and published."
	textPostRejected    = "Post rejected."
	textNotAllowed      = "This action is for admins only."
	textReviewersOnly   = "This action is for the review team only."
	textBusy            = "Finish or cancel the current form first."
	textUnknown         = "I did not understand that. Use the menu below."
	textFallbackErr     = "Something went wrong, please try again."
	textNewSubmission   = "New submission is waiting for review:"
)
