// internal/browser/session/scripts.go
package session

// Function declarations evaluated with `this` bound to a remote element.

const jsQueryAll = `function(selector) {
	return Array.from(this.querySelectorAll(selector));
}`

const jsDescribe = `function() {
	const collapse = (s) => (s || "").replace(/\s+/g, " ").trim();
	const el = this;
	const attrs = {};
	if (el.getAttribute) {
		for (const name of ["aria-label", "title", "placeholder", "role", "data-testid", "data-icon", "dir", "contenteditable"]) {
			const v = el.getAttribute(name);
			if (v !== null) attrs[name] = v;
		}
	}
	let own = "";
	for (const c of el.childNodes || []) {
		if (c.nodeType === Node.TEXT_NODE) own += c.nodeValue;
	}
	const tag = (el.tagName || "").toLowerCase();
	let kind = 0;
	if (tag === "input" || tag === "textarea") kind = 1;
	else if (el.isContentEditable) kind = 2;
	return {tag: tag, attrs: attrs, text: collapse(el.textContent), ownText: collapse(own), kind: kind};
}`

const jsGeometry = `function() {
	const r = this.getBoundingClientRect();
	const s = window.getComputedStyle(this);
	return {
		x: r.x, y: r.y, width: r.width, height: r.height,
		offsetWidth: this.offsetWidth || 0, offsetHeight: this.offsetHeight || 0,
		clientRects: this.getClientRects().length,
		display: s.display, visibility: s.visibility
	};
}`

const jsScrollIntoView = `function() {
	this.scrollIntoView({block: "center", inline: "center"});
}`

const jsFocus = `function() {
	this.focus();
}`

// jsSetContent returns false when the element holds no editable content. Rich
// text goes through execCommand so the application's editor model sees the
// change; textContent is the fallback when the command is refused.
const jsSetContent = `function(text, add) {
	const el = this;
	const tag = (el.tagName || "").toLowerCase();
	if (tag === "input" || tag === "textarea") {
		const proto = tag === "input" ? HTMLInputElement.prototype : HTMLTextAreaElement.prototype;
		const setter = Object.getOwnPropertyDescriptor(proto, "value").set;
		setter.call(el, add ? el.value + text : text);
		return true;
	}
	if (!el.isContentEditable) return false;
	el.focus();
	const range = document.createRange();
	range.selectNodeContents(el);
	if (add) range.collapse(false);
	const sel = window.getSelection();
	sel.removeAllRanges();
	sel.addRange(range);
	const ok = text === "" ? document.execCommand("delete", false) : document.execCommand("insertText", false, text);
	if (!ok) {
		if (add) el.textContent += text;
		else el.textContent = text;
	}
	return true;
}`

const jsDispatch = `function(type, inputType, data) {
	let ev;
	switch (type) {
	case "input":
		ev = new InputEvent("input", {bubbles: true, inputType: inputType, data: data});
		break;
	case "textInput":
		ev = new InputEvent("textInput", {bubbles: true, cancelable: true, data: data});
		break;
	case "compositionend":
		ev = new CompositionEvent("compositionend", {bubbles: true, data: data});
		break;
	case "focus":
		ev = new FocusEvent("focus");
		break;
	case "click":
		this.click();
		return;
	default:
		ev = new Event(type, {bubbles: true});
	}
	this.dispatchEvent(ev);
}`
