package api

const (
	msgNotConnected      = "Slack workspace not connected. Please connect your workspace first."
	msgTokenExpired      = "Access token expired. Please reconnect your workspace."
	msgMessageNotFound   = "Scheduled message not found"
	msgAlreadySent       = "Cannot cancel a message that has already been sent"
	msgAlreadyCancelled  = "Message is already cancelled"
	msgAlreadyFailed     = "Cannot cancel a message that has already failed"
	msgInternal          = "internal error"
	msgSent              = "Message sent successfully"
	msgScheduled         = "Message scheduled successfully"
	msgCancelled         = "Message cancelled successfully"
	msgRefreshed         = "Credential refreshed"
	msgInstalled         = "Slack workspace connected! You can close this window."
	msgOAuthStateInvalid = "OAuth state mismatch, please restart the installation"

	oauthStateCookie = "slack_oauth_state"
	maxBodyBytes     = 1 << 20
)
