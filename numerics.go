package main

// Numeric replies we send.
const (
	rplWelcome      = "001"
	rplYourHost     = "002"
	rplCreated      = "003"
	rplMyInfo       = "004"
	rplUModeIs      = "221"
	rplChannelModes = "324"
	rplCreationTime = "329"
	rplNoTopic      = "331"
	rplTopic        = "332"
	rplTopicWhoTime = "333"
	rplInviting     = "341"
	rplNamReply     = "353"
	rplEndOfNames   = "366"
	rplBanList      = "367"
	rplEndOfBanList = "368"
	rplMOTD         = "372"
	rplMOTDStart    = "375"
	rplEndOfMOTD    = "376"

	errNoSuchNickNumeric        = "401"
	errNoSuchChannelNumeric     = "403"
	errCannotSendToChanNumeric  = "404"
	errTooManyChannelsNumeric   = "405"
	errNoOriginNumeric          = "409"
	errInvalidCapCmdNumeric     = "410"
	errNoRecipientNumeric       = "411"
	errNoTextToSendNumeric      = "412"
	errUnknownCommandNumeric    = "421"
	errNoMOTDNumeric            = "422"
	errNoNicknameGivenNumeric   = "431"
	errErroneusNicknameNumeric  = "432"
	errNicknameInUseNumeric     = "433"
	errUserNotInChannelNumeric  = "441"
	errNotOnChannelNumeric      = "442"
	errUserOnChannelNumeric     = "443"
	errNotRegisteredNumeric     = "451"
	errNeedMoreParamsNumeric    = "461"
	errAlreadyRegisteredNumeric = "462"
	errPasswdMismatchNumeric    = "464"
	errKeySetNumeric            = "467"
	errChannelIsFullNumeric     = "471"
	errUnknownModeNumeric       = "472"
	errInviteOnlyChanNumeric    = "473"
	errBannedFromChanNumeric    = "474"
	errBadChannelKeyNumeric     = "475"
	errChanOPrivsNeededNumeric  = "482"
	errUModeUnknownFlagNumeric  = "501"
	errUsersDontMatchNumeric    = "502"
	errInvalidModeParamNumeric  = "696"
)
