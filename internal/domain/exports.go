package domain

import (
	interfaces "dualinbox/internal/domain/interfaces"
	types "dualinbox/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Address                 = types.Address
	ConsentState            = types.ConsentState
	ConsentPreferences      = types.ConsentPreferences
	PreferencesResponse     = types.PreferencesResponse
	Content                 = types.Content
	TextContent             = types.TextContent
	RemoteAttachmentContent = types.RemoteAttachmentContent
	UnknownContent          = types.UnknownContent
	DecodedMessage          = types.DecodedMessage
	ListOptions             = types.ListOptions
	RemoteAttachment        = types.RemoteAttachment
	Attachment              = types.Attachment
	TopicMetadata           = types.TopicMetadata
	TopicRegistration       = types.TopicRegistration
	RegistrationRequest     = types.RegistrationRequest
	GroupMessageKind        = types.GroupMessageKind
	EncryptedGroupMessage   = types.EncryptedGroupMessage
	DecryptedGroupMessage   = types.DecryptedGroupMessage
	GroupPage               = types.GroupPage
	GroupUser               = types.GroupUser
	Subscription            = types.Subscription
	PayloadData             = types.PayloadData
	KeyKind                 = types.KeyKind
	Resolution              = types.Resolution
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	Signer          = interfaces.Signer
	DMClientFactory = interfaces.DMClientFactory
	DMClient        = interfaces.DMClient
	Conversation    = interfaces.Conversation
	GroupClient     = interfaces.GroupClient
	IndexClient     = interfaces.IndexClient
	BlobStorage     = interfaces.BlobStorage
	NameResolver    = interfaces.NameResolver
	KeyStore        = interfaces.KeyStore
	ResolutionStore = interfaces.ResolutionStore
	GroupCache      = interfaces.GroupCache
	WalletStore     = interfaces.WalletStore
)

const (
	ConsentUnknown = types.ConsentUnknown
	ConsentAllowed = types.ConsentAllowed
	ConsentDenied  = types.ConsentDenied

	KeyDM    = types.KeyDM
	KeyGroup = types.KeyGroup

	GroupKindText  = types.GroupKindText
	GroupKindMedia = types.GroupKindMedia
	GroupKindMeta  = types.GroupKindMeta

	AttachmentScheme = types.AttachmentScheme
	CAIP10Prefix     = types.CAIP10Prefix
)

var (
	ErrInvalidAddress     = types.ErrInvalidAddress
	ParseAddress          = types.ParseAddress
	AddressFromBytes      = types.AddressFromBytes
	StripCAIP10           = types.StripCAIP10
	NewConsentPreferences = types.NewConsentPreferences
	ContentKind           = types.ContentKind
)
