// Package content manages the editable parts of the site: the homepage
// philosophy text and the stylesheet produced by the CSS editor.
//
// Both live under the project's static directory
// (static/philosophy_content.json and static/css/text_editor_generated.css) so
// they are served, backed up and pushed along with the rest of the site.
package content
