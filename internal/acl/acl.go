// Package acl builds and merges Opencast access control lists.
//
// Events carry an XACML policy attachment; series carry the simpler
// <acl><ace/></acl> format. Both are rendered from the same Rule list.
package acl

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/MikeSquared-Agency/postarchive/internal/metadata"
)

// Permission is the action a rule grants.
type Permission string

const (
	Read  Permission = "read"
	Write Permission = "write"
)

// Rule grants one permission to one role.
type Rule struct {
	Principal  string
	Permission Permission
}

// Definition names the metadata keys holding role and user lists.
type Definition struct {
	ReadRoles  string
	WriteRoles string
	UserIDs    string
}

var (
	EventDefinition = Definition{
		ReadRoles:  "opencast-acl-read-roles",
		WriteRoles: "opencast-acl-write-roles",
		UserIDs:    "opencast-acl-user-id",
	}
	SeriesDefinition = Definition{
		ReadRoles:  "opencast-series-acl-read-roles",
		WriteRoles: "opencast-series-acl-write-roles",
		UserIDs:    "opencast-series-acl-user-id",
	}
)

// UserRole is the role Opencast derives for a user id.
func UserRole(id string) string {
	return "ROLE_USER_" + id
}

// Parse expands the configured default roles and the roles and user ids
// found in the metadata into rules, in that order. Duplicates are kept.
func Parse(bag metadata.Bag, def Definition, defaultRead, defaultWrite string) []Rule {
	var rules []Rule
	add := func(roles []string, p Permission) {
		for _, r := range roles {
			rules = append(rules, Rule{Principal: r, Permission: p})
		}
	}

	add(metadata.SplitList(defaultRead), Read)
	add(metadata.SplitList(defaultWrite), Write)
	add(bag.List(def.ReadRoles), Read)
	add(bag.List(def.WriteRoles), Write)

	for _, id := range bag.List(def.UserIDs) {
		rules = append(rules,
			Rule{Principal: UserRole(id), Permission: Read},
			Rule{Principal: UserRole(id), Permission: Write},
		)
	}
	return rules
}

const (
	xacmlNamespace  = "urn:oasis:names:tc:xacml:2.0:policy:schema:os"
	aclNamespace    = "http://org.opencastproject.security"
	xsdString       = "http://www.w3.org/2001/XMLSchema#string"
	declaration     = `version="1.0" encoding="UTF-8" standalone="yes"`
	permitOverrides = "urn:oasis:names:tc:xacml:1.0:rule-combining-algorithm:permit-overrides"
)

// XACML renders the event policy.
func XACML(rules []Rule) (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", declaration)

	policy := doc.CreateElement("Policy")
	policy.CreateAttr("PolicyId", "mediapackage-1")
	policy.CreateAttr("RuleCombiningAlgId", permitOverrides)
	policy.CreateAttr("Version", "2.0")
	policy.CreateAttr("xmlns", xacmlNamespace)

	for _, r := range rules {
		rule := policy.CreateElement("Rule")
		rule.CreateAttr("RuleId", fmt.Sprintf("%s_%s_Permit", r.Principal, r.Permission))
		rule.CreateAttr("Effect", "Permit")

		match := rule.CreateElement("Target").
			CreateElement("Actions").
			CreateElement("Action").
			CreateElement("ActionMatch")
		match.CreateAttr("MatchId", "urn:oasis:names:tc:xacml:1.0:function:string-equal")
		value := match.CreateElement("AttributeValue")
		value.CreateAttr("DataType", xsdString)
		value.SetText(string(r.Permission))
		designator := match.CreateElement("ActionAttributeDesignator")
		designator.CreateAttr("AttributeId", "urn:oasis:names:tc:xacml:1.0:action:action-id")
		designator.CreateAttr("DataType", xsdString)

		apply := rule.CreateElement("Condition").CreateElement("Apply")
		apply.CreateAttr("FunctionId", "urn:oasis:names:tc:xacml:1.0:function:string-is-in")
		role := apply.CreateElement("AttributeValue")
		role.CreateAttr("DataType", xsdString)
		role.SetText(r.Principal)
		subject := apply.CreateElement("SubjectAttributeDesignator")
		subject.CreateAttr("AttributeId", "urn:oasis:names:tc:xacml:2.0:subject:role")
		subject.CreateAttr("DataType", xsdString)
	}

	return write(doc)
}

// SeriesACL renders the series access control list.
func SeriesACL(rules []Rule) (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", declaration)

	root := doc.CreateElement("acl")
	root.CreateAttr("xmlns", aclNamespace)
	for _, r := range rules {
		appendACE(root, r)
	}
	return write(doc)
}

func appendACE(parent *etree.Element, r Rule) {
	ace := parent.CreateElement(qualify(parent.Space, "ace"))
	ace.CreateElement(qualify(parent.Space, "action")).SetText(string(r.Permission))
	ace.CreateElement(qualify(parent.Space, "allow")).SetText("true")
	ace.CreateElement(qualify(parent.Space, "role")).SetText(r.Principal)
}

func qualify(space, tag string) string {
	if space == "" {
		return tag
	}
	return space + ":" + tag
}

func write(doc *etree.Document) (string, error) {
	doc.Indent(2)
	s, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("write acl: %w", err)
	}
	return s, nil
}
