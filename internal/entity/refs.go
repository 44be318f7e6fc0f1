package entity

import (
	"github.com/hupe1980/xmangle/internal/record"
)

// droppedKinds are removed unconditionally: audit trails, OAuth credentials,
// saved-filter subscriptions, mail servers, and project categories never
// survive a migration between deployments.
var droppedKinds = map[string]bool{
	"AuditChangedValue":            true,
	"AuditItem":                    true,
	"AuditLog":                     true,
	"OAuthConsumer":                true,
	"OAuthServiceProviderConsumer": true,
	"OAuthServiceProviderToken":    true,
	"FilterSubscription":           true,
	"MailServer":                   true,
	"ProjectCategory":              true,
}

// attrRule describes how one record kind references retained entities. The
// user key is denormalized across the dataset, so renames must be applied per
// attribute, per kind — this registry is the single source of truth for
// which attributes hold such references.
//
// Retention checks (keepUser/keepGroup/keepDir) observe the original
// attribute values; renames and directory remaps run only on records that
// survive.
type attrRule struct {
	// when gates the rule on the record's attributes. A nil when always
	// matches. The first matching rule wins; a kind with no matching rule
	// falls through to the scheme rules and default keep.
	when func(*record.Record) bool

	// keepUser lists attributes whose value must be a retained username.
	keepUser []string
	// keepGroup lists attributes whose value must be an allowlisted group.
	keepGroup []string
	// keepDir lists attributes whose value must be a remapped directory id.
	keepDir []string

	// renameUser lists attributes the username rename applies to.
	renameUser []string
	// remapDir lists attributes the directory id remap applies to.
	remapDir []string
}

func attrEquals(name, value string) func(*record.Record) bool {
	return func(r *record.Record) bool { return r.Get(name) == value }
}

func attrPresent(name string) func(*record.Record) bool {
	return func(r *record.Record) bool { return r.Has(name) }
}

// entityRefs is the reference registry: every record kind that holds a
// username, group name, or directory id in one of its attributes.
var entityRefs = map[string][]attrRule{
	"Action": {
		{renameUser: []string{"author", "updateauthor"}},
	},
	"Avatar": {
		{
			when: func(r *record.Record) bool {
				return r.Get("avatarType") == "user" && r.Has("owner")
			},
			keepUser:   []string{"owner"},
			renameUser: []string{"owner"},
		},
	},
	"User": {
		{
			keepUser:   []string{"userName"},
			keepDir:    []string{"directoryId"},
			renameUser: []string{"userName", "lowerUserName"},
			remapDir:   []string{"directoryId"},
		},
	},
	"ApplicationUser": {
		{
			keepUser:   []string{"userKey"},
			renameUser: []string{"userKey", "lowerUserName"},
		},
	},
	"Group": {
		{
			keepGroup: []string{"groupName"},
			keepDir:   []string{"directoryId"},
			remapDir:  []string{"directoryId"},
		},
	},
	"Membership": {
		{
			when:       attrEquals("membershipType", "GROUP_USER"),
			keepUser:   []string{"childName"},
			keepGroup:  []string{"parentName"},
			keepDir:    []string{"directoryId"},
			renameUser: []string{"childName", "lowerChildName"},
			remapDir:   []string{"directoryId"},
		},
	},
	"UserAttribute": {
		{
			keepDir:  []string{"directoryId"},
			remapDir: []string{"directoryId"},
		},
	},
	"UserHistoryItem": {
		{
			keepUser:   []string{"username"},
			renameUser: []string{"entityId", "username"},
		},
	},
	"SearchRequest": {
		{
			keepUser:   []string{"author"},
			renameUser: []string{"author", "user"},
		},
	},
	"SharePermissions": {
		{
			when:      attrEquals("type", "group"),
			keepGroup: []string{"param1"},
		},
	},
	"RememberMeToken": {
		{
			keepUser:   []string{"username"},
			renameUser: []string{"username"},
		},
	},
	"ChangeGroup": {
		{renameUser: []string{"author"}},
	},
	"ChangeItem": {
		{
			when: func(r *record.Record) bool {
				f := r.Get("field")
				return f == "assignee" || f == "reporter"
			},
			renameUser: []string{"newvalue", "oldvalue"},
		},
	},
	"FileAttachment": {
		{renameUser: []string{"author"}},
	},
	"Issue": {
		{renameUser: []string{"assignee", "creator", "reporter"}},
	},
	"Project": {
		{renameUser: []string{"lead"}},
	},
	"UserAssociation": {
		{
			keepUser:   []string{"sourceName"},
			renameUser: []string{"sourceName"},
		},
	},
	"ProjectRoleActor": {
		{
			when:       attrEquals("roletype", "atlassian-user-role-actor"),
			keepUser:   []string{"roletypeparameter"},
			renameUser: []string{"roletypeparameter"},
		},
	},
	"PortalPage": {
		{
			when:       attrPresent("username"),
			keepUser:   []string{"username"},
			renameUser: []string{"username"},
		},
	},
	"ColumnLayout": {
		{
			when:       attrPresent("username"),
			keepUser:   []string{"username"},
			renameUser: []string{"username"},
		},
	},
	"ExternalEntity": {
		{
			keepUser:   []string{"name"},
			renameUser: []string{"name"},
		},
	},
	"FavouriteAssociations": {
		{
			keepUser:   []string{"username"},
			renameUser: []string{"username"},
		},
	},
	"Feature": {
		{
			when:     attrEquals("featureType", "user"),
			keepUser: []string{"userKey"},
		},
	},
	"Notification": {
		{
			when:     attrEquals("type", "Single_User"),
			keepUser: []string{"parameter"},
		},
	},
	"SchemePermissions": {
		{
			when:     attrEquals("type", "user"),
			keepUser: []string{"parameter"},
		},
		{
			when:      attrEquals("type", "group"),
			keepGroup: []string{"parameter"},
		},
	},
	"OSHistoryStep": {
		{
			when:       attrPresent("caller"),
			keepUser:   []string{"caller"},
			renameUser: []string{"caller"},
		},
	},
}

// propertyValueKinds are the typed value records belonging to an
// OSPropertyEntry, matched by shared id.
var propertyValueKinds = map[string]bool{
	"OSPropertyDecimal": true,
	"OSPropertyNumber":  true,
	"OSPropertyString":  true,
	"OSPropertyText":    true,
}

// schemeRule ties a record kind to the retained-id set that gates it.
type schemeRule struct {
	attr string // attribute holding the id
	set  string // key into the retained scheme-id sets
}

// schemeRefs gates scheme records and their member rows on the scheme ids
// collected during the scan pass. Kinds with extra conditions (FieldLayout,
// FieldConfigScheme, OptionConfiguration, Workflow) are handled separately.
var schemeRefs = map[string]schemeRule{
	"IssueSecurityScheme":         {attr: "id", set: "IssueSecurityScheme"},
	"SchemeIssueSecurities":       {attr: "scheme", set: "IssueSecurityScheme"},
	"SchemeIssueSecurityLevels":   {attr: "scheme", set: "IssueSecurityScheme"},
	"NotificationScheme":          {attr: "id", set: "NotificationScheme"},
	"Notification":                {attr: "scheme", set: "NotificationScheme"},
	"PermissionScheme":            {attr: "id", set: "PermissionScheme"},
	"SchemePermissions":           {attr: "scheme", set: "PermissionScheme"},
	"IssueTypeScreenScheme":       {attr: "id", set: "IssueTypeScreenScheme"},
	"IssueTypeScreenSchemeEntity": {attr: "scheme", set: "IssueTypeScreenScheme"},
	"FieldLayoutScheme":           {attr: "id", set: "FieldLayoutScheme"},
	"FieldLayoutSchemeEntity":     {attr: "scheme", set: "FieldLayoutScheme"},
	"WorkflowScheme":              {attr: "id", set: "WorkflowScheme"},
	"WorkflowSchemeEntity":        {attr: "scheme", set: "WorkflowScheme"},
	"FieldScreenScheme":           {attr: "id", set: "FieldScreenScheme"},
	"FieldScreenSchemeItem":       {attr: "fieldscreenscheme", set: "FieldScreenScheme"},
	"FieldScreen":                 {attr: "id", set: "FieldScreen"},
	"FieldScreenTab":              {attr: "fieldscreen", set: "FieldScreen"},
	"FieldScreenLayoutItem":       {attr: "fieldscreentab", set: "FieldScreenTab"},
	"FieldLayoutItem":             {attr: "fieldlayout", set: "FieldLayout"},
	"Status":                      {attr: "id", set: "Status"},
	"FieldConfigSchemeIssueType":  {attr: "fieldconfigscheme", set: "FieldConfigScheme"},
	"FieldConfiguration":          {attr: "id", set: "FieldConfiguration"},
	"IssueType":                   {attr: "id", set: "IssueType"},
}
